package sdls

// NumSA is the fixed size of the Security Association table (spec.md §3).
const NumSA = 64

// NumGVCID is the number of GVCID channel bindings an SA can hold per
// direction (spec.md §3).
const NumGVCID = 8

// ARCSize is the maximum length in octets of the arc/arcw buffers
// (spec.md §4.3, sa_set_arsnw clamp).
const ARCSize = 20

// SAState is a Security Association's lifecycle state (spec.md §3, §4.10).
type SAState int

const (
	SAStateNone SAState = iota
	SAStateUnkeyed
	SAStateKeyed
	SAStateOperational
)

func (s SAState) String() string {
	switch s {
	case SAStateUnkeyed:
		return "Unkeyed"
	case SAStateKeyed:
		return "Keyed"
	case SAStateOperational:
		return "Operational"
	default:
		return "None"
	}
}

// Direction-tag sentinels stored in a GVCID binding's MapID field to record
// whether the binding was installed against the TC or TM channel table.
// spec.md §4.6 step 3 calls for validating "mapid == TC"; the legacy field
// doubles as both the CCSDS MAP channel id and, for these two reserved
// values, a direction tag — see DESIGN.md.
const (
	MapIDTC byte = 0xFE
	MapIDTM byte = 0xFD
)

// GVCID is a Global Virtual Channel Identifier channel binding.
type GVCID struct {
	TFVN  byte
	SCID  uint16
	VCID  byte
	MapID byte
}

// SecurityAssociation is the per-channel security policy and runtime
// counters record (spec.md §3).
type SecurityAssociation struct {
	SPI   int
	State SAState

	EKID int // encryption key id
	AKID int // authentication key id

	EST bool // encryption service enabled
	AST bool // authentication service enabled

	ShivfLen int // IV field length in the security header
	ShsnfLen int // sequence number field length
	ShplfLen int // pad length field length
	StmacfLen int // MAC field length in the security trailer
	EcsLen   int
	IvLen    int
	AcsLen   int
	AbmLen   int
	ArcLen   int
	ArcwLen  int

	ECS [8]byte      // encryption cipher suite selector
	IV  [IVSize]byte // current/next expected IV
	ABM [32]byte     // AAD bit mask over the frame prefix
	ARC [ARCSize]byte
	ARCW [ARCSize]byte

	GvcidTC [NumGVCID]GVCID
	GvcidTM [NumGVCID]GVCID

	LPID byte // last SDLS EP procedure id executed against this SA
}

// WindowWidth decodes ARCW[:ArcwLen] as a big-endian integer, the anti-
// replay window width (spec.md §4.4, §4.6 step 3).
func (sa *SecurityAssociation) WindowWidth() uint64 {
	n := sa.ArcwLen
	if n <= 0 {
		return 1
	}
	if n > ARCSize {
		n = ARCSize
	}
	var w uint64
	for i := 0; i < n; i++ {
		w = (w << 8) | uint64(sa.ARCW[i])
	}
	if w == 0 {
		return 1
	}
	return w
}

// SAConfig is the caller-supplied configuration for sa_create.
type SAConfig struct {
	EKID, AKID                                 int
	EST, AST                                   bool
	ShivfLen, ShsnfLen, ShplfLen, StmacfLen     int
	EcsLen, IvLen, AcsLen, AbmLen, ArcLen, ArcwLen int
	ECS, IV, ABM, ARC, ARCW                     []byte
}

// SADB is the Security Association table.
type SADB struct {
	sas [NumSA]SecurityAssociation
}

// NewSADB returns a table with every slot in state None.
func NewSADB() *SADB {
	db := &SADB{}
	for i := range db.sas {
		db.sas[i].SPI = i
	}
	return db
}

// Get returns a pointer to the SA at spi. Writes through it change the table
// entry directly, with no state-machine checks; the engine and interpreter
// use it to update IV, LPID and the fault-injection fields.
func (db *SADB) Get(spi int) (*SecurityAssociation, error) {
	if spi < 0 || spi >= NumSA {
		return nil, newErr("sadb.get", spi, ErrNotFound, "spi out of range")
	}
	return &db.sas[spi], nil
}

// Create transitions an SA None -> Unkeyed, copying cfg and recording the
// procedure id lpid (spec.md §4.3).
func (db *SADB) Create(spi int, cfg SAConfig, pid byte) error {
	sa, err := db.Get(spi)
	if err != nil {
		return err
	}
	if sa.State != SAStateNone {
		return newErr("sa_create", spi, ErrState, "expected state None, got %v", sa.State)
	}
	*sa = SecurityAssociation{SPI: spi}
	sa.EKID, sa.AKID = cfg.EKID, cfg.AKID
	sa.EST, sa.AST = cfg.EST, cfg.AST
	sa.ShivfLen, sa.ShsnfLen, sa.ShplfLen, sa.StmacfLen = cfg.ShivfLen, cfg.ShsnfLen, cfg.ShplfLen, cfg.StmacfLen
	sa.EcsLen, sa.IvLen, sa.AcsLen, sa.AbmLen, sa.ArcLen, sa.ArcwLen =
		cfg.EcsLen, cfg.IvLen, cfg.AcsLen, cfg.AbmLen, cfg.ArcLen, cfg.ArcwLen
	copy(sa.ECS[:], cfg.ECS)
	copy(sa.IV[:], cfg.IV)
	copy(sa.ABM[:], cfg.ABM)
	copy(sa.ARC[:], cfg.ARC)
	copy(sa.ARCW[:], cfg.ARCW)
	sa.State = SAStateUnkeyed
	sa.LPID = pid
	return nil
}

// Rekey transitions Unkeyed -> Keyed, binding an encryption key and setting
// the initial IV (spec.md §4.3).
func (db *SADB) Rekey(spi, ekid int, iv []byte, pid byte) error {
	sa, err := db.Get(spi)
	if err != nil {
		return err
	}
	sa.LPID = pid
	if sa.State != SAStateUnkeyed {
		return newErr("sa_rekey", spi, ErrState, "expected state Unkeyed, got %v", sa.State)
	}
	sa.EKID = ekid
	copy(sa.IV[:], iv)
	sa.State = SAStateKeyed
	return nil
}

// Start transitions Keyed -> Operational, installing channel bindings. Per
// spec.md §4.3/§9.5, clearing uses the outer loop index x while installing
// uses gvcid_tc_blk[vcid] — this asymmetry is preserved as specified.
func (db *SADB) Start(spi int, list []GVCID, pid byte) error {
	sa, err := db.Get(spi)
	if err != nil {
		return err
	}
	sa.LPID = pid
	if sa.State != SAStateKeyed {
		return newErr("sa_start", spi, ErrState, "expected state Keyed, got %v", sa.State)
	}
	for x, g := range list {
		if x >= NumGVCID {
			break
		}
		for i := range sa.GvcidTC {
			if sa.GvcidTC[i].VCID != g.VCID {
				sa.GvcidTC[x] = GVCID{}
			}
		}
		g.MapID = MapIDTC
		sa.GvcidTC[g.VCID%NumGVCID] = g
	}
	sa.State = SAStateOperational
	return nil
}

// Stop transitions Operational -> Keyed, zeroing all channel bindings.
func (db *SADB) Stop(spi int, pid byte) error {
	sa, err := db.Get(spi)
	if err != nil {
		return err
	}
	sa.LPID = pid
	if sa.State != SAStateOperational {
		return newErr("sa_stop", spi, ErrState, "expected state Operational, got %v", sa.State)
	}
	sa.GvcidTC = [NumGVCID]GVCID{}
	sa.GvcidTM = [NumGVCID]GVCID{}
	sa.State = SAStateKeyed
	return nil
}

// Expire transitions Keyed -> Unkeyed.
func (db *SADB) Expire(spi int, pid byte) error {
	sa, err := db.Get(spi)
	if err != nil {
		return err
	}
	sa.LPID = pid
	if sa.State != SAStateKeyed {
		return newErr("sa_expire", spi, ErrState, "expected state Keyed, got %v", sa.State)
	}
	sa.State = SAStateUnkeyed
	return nil
}

// Delete transitions Unkeyed -> None.
func (db *SADB) Delete(spi int, pid byte) error {
	sa, err := db.Get(spi)
	if err != nil {
		return err
	}
	if sa.State != SAStateUnkeyed {
		return newErr("sa_delete", spi, ErrState, "expected state Unkeyed, got %v", sa.State)
	}
	*sa = SecurityAssociation{SPI: spi}
	return nil
}

// SetARSN sets the IV/ARSN to v and then increments it once, regardless of
// current SA state (spec.md §4.3 table).
func (db *SADB) SetARSN(spi int, v []byte, pid byte) error {
	sa, err := db.Get(spi)
	if err != nil {
		return err
	}
	sa.LPID = pid
	copy(sa.IV[:], v)
	n := sa.IvLen
	if n <= 0 || n > IVSize {
		n = IVSize
	}
	next, incErr := IncrementBE(sa.IV[:n])
	if incErr != nil {
		return incErr
	}
	copy(sa.IV[:n], next)
	return nil
}

// SetARSNW sets the anti-replay window width, clamping arcw_len to ARCSize.
func (db *SADB) SetARSNW(spi int, w []byte, pid byte) error {
	sa, err := db.Get(spi)
	if err != nil {
		return err
	}
	sa.LPID = pid
	n := len(w)
	if n > ARCSize {
		n = ARCSize
	}
	sa.ARCW = [ARCSize]byte{}
	copy(sa.ARCW[:], w[:n])
	sa.ArcwLen = n
	return nil
}

// FindOperationalTC returns the first Operational SA whose TC GVCID block
// matches {scid, vcid} for the TC direction, as required by ApplySecurity
// step 2 and ProcessSecurity's SPI validation (spec.md §4.5, §4.6).
func (db *SADB) FindOperationalTC(scid uint16, vcid byte) (*SecurityAssociation, error) {
	for i := range db.sas {
		sa := &db.sas[i]
		if sa.State != SAStateOperational {
			continue
		}
		g := sa.GvcidTC[vcid%NumGVCID]
		if g.MapID == MapIDTC && g.SCID == scid && g.VCID == vcid {
			return sa, nil
		}
	}
	return nil, newErr("sa_lookup", -1, ErrNotFound, "no operational SA for scid=%d vcid=%d", scid, vcid)
}
