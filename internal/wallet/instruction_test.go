package wallet

import "testing"

func TestInstructionRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
		check   func(t *testing.T, in *instruction)
	}{
		{
			"add owner", EncodeAddOwner(ownerA),
			func(t *testing.T, in *instruction) {
				if in.kind != instructionAddOwner || in.addr != ownerA {
					t.Errorf("got kind %d addr %x", in.kind, in.addr[:1])
				}
			},
		},
		{
			"remove owner", EncodeRemoveOwner(ownerB),
			func(t *testing.T, in *instruction) {
				if in.kind != instructionRemoveOwner || in.addr != ownerB {
					t.Errorf("got kind %d addr %x", in.kind, in.addr[:1])
				}
			},
		},
		{
			"replace owner", EncodeReplaceOwner(ownerA, ownerD),
			func(t *testing.T, in *instruction) {
				if in.kind != instructionReplaceOwner || in.addr != ownerA || in.addr2 != ownerD {
					t.Errorf("got kind %d old %x new %x", in.kind, in.addr[:1], in.addr2[:1])
				}
			},
		},
		{
			"change required", EncodeChangeRequired(7),
			func(t *testing.T, in *instruction) {
				if in.kind != instructionChangeRequired || in.amount != 7 {
					t.Errorf("got kind %d amount %d", in.kind, in.amount)
				}
			},
		},
		{
			"change daily limit", EncodeChangeDailyLimit(5000),
			func(t *testing.T, in *instruction) {
				if in.kind != instructionChangeDailyLimit || in.amount != 5000 {
					t.Errorf("got kind %d amount %d", in.kind, in.amount)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, err := decodeInstruction(tc.payload)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			tc.check(t, in)
		})
	}
}

func TestDecodeInstructionRejectsMalformed(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"unknown kind", []byte{0x7f}},
		{"short owner arg", append([]byte{byte(instructionAddOwner)}, make([]byte, 16)...)},
		{"short replace args", append([]byte{byte(instructionReplaceOwner)}, make([]byte, 32)...)},
		{"short amount arg", append([]byte{byte(instructionChangeRequired)}, 0x01)},
		{"oversized amount arg", append([]byte{byte(instructionChangeDailyLimit)}, make([]byte, 9)...)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeInstruction(tc.payload); err == nil {
				t.Error("malformed payload accepted")
			}
		})
	}
}
