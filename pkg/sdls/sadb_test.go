package sdls

import "testing"

func TestSALifecycle(t *testing.T) {
	db := NewSADB()
	spi := 3

	if err := db.Create(spi, SAConfig{EST: true, AST: true, ShivfLen: IVSize, StmacfLen: MACSize, IvLen: IVSize}, 1); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sa, _ := db.Get(spi)
	if sa.State != SAStateUnkeyed {
		t.Fatalf("state after Create = %v, want Unkeyed", sa.State)
	}

	if err := db.Rekey(spi, 200, make([]byte, IVSize), 2); err != nil {
		t.Fatalf("Rekey: %v", err)
	}
	if sa.State != SAStateKeyed {
		t.Fatalf("state after Rekey = %v, want Keyed", sa.State)
	}

	if err := db.Start(spi, []GVCID{{SCID: 0x42, VCID: 1}}, 3); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sa.State != SAStateOperational {
		t.Fatalf("state after Start = %v, want Operational", sa.State)
	}

	found, err := db.FindOperationalTC(0x42, 1)
	if err != nil {
		t.Fatalf("FindOperationalTC: %v", err)
	}
	if found.SPI != spi {
		t.Fatalf("found.SPI = %d, want %d", found.SPI, spi)
	}

	if err := db.Stop(spi, 4); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sa.State != SAStateKeyed {
		t.Fatalf("state after Stop = %v, want Keyed", sa.State)
	}
	if _, err := db.FindOperationalTC(0x42, 1); err == nil {
		t.Fatal("FindOperationalTC should fail once the SA is stopped")
	}

	if err := db.Expire(spi, 5); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if sa.State != SAStateUnkeyed {
		t.Fatalf("state after Expire = %v, want Unkeyed", sa.State)
	}

	if err := db.Delete(spi, 6); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if sa.State != SAStateNone {
		t.Fatalf("state after Delete = %v, want None", sa.State)
	}
}

func TestSAWrongStateTransitionRejected(t *testing.T) {
	db := NewSADB()
	if err := db.Rekey(1, 200, make([]byte, IVSize), 1); err == nil {
		t.Fatal("Rekey on a None SA should fail")
	}
}

func TestSAWindowWidthDefaultsToOne(t *testing.T) {
	sa := &SecurityAssociation{}
	if w := sa.WindowWidth(); w != 1 {
		t.Errorf("WindowWidth() = %d, want 1 for an unset ARCW", w)
	}
}

func TestSASetARSNAdvancesPastGivenValue(t *testing.T) {
	db := NewSADB()
	_ = db.Create(1, SAConfig{IvLen: IVSize}, 1)
	v := make([]byte, IVSize)
	v[IVSize-1] = 0x10
	if err := db.SetARSN(1, v, 2); err != nil {
		t.Fatal(err)
	}
	sa, _ := db.Get(1)
	if sa.IV[IVSize-1] != 0x11 {
		t.Errorf("IV after SetARSN = %x, want last byte 0x11", sa.IV)
	}
}
