package modbus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBytesToRegisters(t *testing.T) {
	for _, test := range []struct {
		in   []byte
		want []uint16
	}{
		{nil, []uint16{}},
		{[]byte{0x01, 0x02}, []uint16{0x0102}},
		{[]byte{0xFF, 0xCE, 0x00, 0x0A, 0x07}, []uint16{0xFFCE, 0x000A}},
	} {
		if diff := cmp.Diff(BytesToRegisters(test.in), test.want); diff != "" {
			t.Errorf("BytesToRegisters(%x): got(-)/want(+):\n%s", test.in, diff)
		}
	}
}

func TestClientWithoutTarget(t *testing.T) {
	c := &Client{}
	if _, err := c.ReadInputRegisters(0, 1); err == nil {
		t.Error("read without a target succeeded")
	}
}
