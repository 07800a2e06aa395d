package badgerstore

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same record always
// produces identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("badgerstore: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("badgerstore: CBOR decoder initialization failed: " + err.Error())
	}
}

type participantRecord struct {
	Seq        uint64 `cbor:"1,keyasint"`
	Name       string `cbor:"2,keyasint"`
	LastStatus int64  `cbor:"3,keyasint"`
}

type messageRecord struct {
	ID   []byte `cbor:"1,keyasint"`
	From string `cbor:"2,keyasint"`
	To   string `cbor:"3,keyasint"`
	Text string `cbor:"4,keyasint"`
	Kind string `cbor:"5,keyasint"`
	Time string `cbor:"6,keyasint"`
}
