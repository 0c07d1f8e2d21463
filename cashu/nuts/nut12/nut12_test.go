package nut12

import (
	"testing"

	"github.com/nutvault/walletcore/cashu"
)

func TestHasWellFormedDLEQNone(t *testing.T) {
	proofs := cashu.Proofs{{Amount: 1, Id: "00882760bfa2eb41", Secret: "s", C: "c"}}
	if err := HasWellFormedDLEQ(proofs); err != nil {
		t.Errorf("expected no error for proofs without DLEQ, got: %v", err)
	}
}

func TestHasWellFormedDLEQValid(t *testing.T) {
	proofs := cashu.Proofs{{
		Amount: 1,
		Id:     "00882760bfa2eb41",
		Secret: "daf4dd00a2b68a0858a80450f52c8a7d2ccf87d375e43e216e0c571f089f63e9",
		C:      "024369d2d22a80ecf78f3937da9d5f30c1b9f74f0c32684d583cca0fa6a61cdcfc",
		DLEQ: &cashu.DLEQProof{
			E: "b31e58ac6527f34975ffab13e70a48b6d2b0d35abc4b03f0151f09ee1a9763d4",
			S: "8fbae004c59e754d71df67e392b6ae4e29293113ddc2ec86592a0431d16306d8",
			R: "a6d13fcd7a18442e6076f5e1e7c887ad5de40a019824bdfa9fe740d302e8d861",
		},
	}}
	if err := HasWellFormedDLEQ(proofs); err != nil {
		t.Errorf("expected well-formed DLEQ, got: %v", err)
	}
}

func TestHasWellFormedDLEQMalformed(t *testing.T) {
	proofs := cashu.Proofs{{
		Amount: 1,
		Id:     "00882760bfa2eb41",
		Secret: "s",
		C:      "c",
		DLEQ:   &cashu.DLEQProof{E: "not-hex", S: "not-hex"},
	}}
	if err := HasWellFormedDLEQ(proofs); err == nil {
		t.Errorf("expected error for malformed DLEQ")
	}
}
