// Package sdls implements the core of a CCSDS Space Data Link Security
// Protocol (SDLS, CCSDS 355.0-B-1) engine over Telecommand (CCSDS 232.0) and
// Telemetry (CCSDS 132.0) transfer frames.
//
// The package applies and removes per-frame confidentiality and authenticity
// using AES-256-GCM, maintains the Security Association table and key ring
// with their lifecycle state machines, interprets embedded SDLS Extended
// Procedures (OTAR, key state changes, SA management), and produces the
// alternating CLCW/FSR operational control field.
//
// Physical link I/O, AOS frame processing, and the AES-GCM primitive itself
// are deliberately outside this package's concerns: CryptoProvider is the
// narrow seam where a hardware or accelerated implementation can be
// substituted for the software one in crypto.go.
package sdls
