package cgserrors

import (
	"errors"
	"testing"
)

func TestErrorFormatsWithAndWithoutCause(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "no cause",
			err:  New(EntityNotFound, "entity 42 does not exist"),
			want: "[0x0300 ECS] entity 42 does not exist",
		},
		{
			name: "with cause",
			err:  Wrap(WalCorrupted, "frame checksum mismatch", errors.New("crc mismatch")),
			want: "[0x0F03 Persistence] frame checksum mismatch: crc mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(DatabaseError, "query failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find cause via Unwrap")
	}
}

func TestWithDetailsChains(t *testing.T) {
	err := New(MapInstanceNotFound, "instance missing").
		WithDetails("mapID", uint32(7)).
		WithDetails("instanceID", uint32(3))

	if err.Details["mapID"] != uint32(7) || err.Details["instanceID"] != uint32(3) {
		t.Fatalf("expected both details to be present, got %#v", err.Details)
	}
}

func TestAsExtractsErrorFromChain(t *testing.T) {
	base := New(CacheMiss, "key not present")
	wrapped := errors.Join(errors.New("context"), base)

	ce, ok := As(wrapped)
	if !ok {
		t.Fatalf("expected As to find *Error in chain")
	}
	if ce.Code != CacheMiss {
		t.Fatalf("expected code %v, got %v", CacheMiss, ce.Code)
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := New(InstanceFull, "instance at capacity")
	if !Is(err, InstanceFull) {
		t.Fatalf("expected Is to match InstanceFull")
	}
	if Is(err, InstanceFull+1) {
		t.Fatalf("expected Is to reject an unrelated code")
	}
}

func TestSubsystemDerivesFromHighByte(t *testing.T) {
	tests := map[Code]string{
		EntityNotFound:     "ECS",
		DatabaseError:      "Database",
		WalCorrupted:       "Persistence",
		DBProxyError:       "DBProxy",
		MapInstanceNotFound: "GameServer",
	}
	for code, want := range tests {
		if got := code.Subsystem(); got != want {
			t.Fatalf("Subsystem(%v) = %q, want %q", code, got, want)
		}
	}
}
