package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEnvelope(t *testing.T) {
	b, err := Encode(LockDenied{FieldID: "hero.title", Holder: "Alice"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"lock-denied","payload":{"fieldId":"hero.title","holder":"Alice"}}`, string(b))
}

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want Message
	}{
		{
			name: "register",
			wire: `{"event":"register-client","payload":{"name":"Bob","isHost":false}}`,
			want: RegisterClient{Name: "Bob"},
		},
		{
			name: "forwarded update",
			wire: `{"event":"forwarded-update","payload":{"type":"pages","data":[{"id":1}],"originSocketId":"s1"}}`,
			want: ForwardedUpdate{Type: "pages", Data: json.RawMessage(`[{"id":1}]`), OriginSocketID: "s1"},
		},
		{
			name: "lock update",
			wire: `{"event":"lock-update","payload":{"status":"unlocked","fieldId":"f"}}`,
			want: LockUpdate{Status: LockUnlocked, FieldID: "f"},
		},
		{
			name: "empty payload",
			wire: `{"event":"request-full-state"}`,
			want: RequestFullState{},
		},
		{
			name: "null payload",
			wire: `{"event":"cancel-build","payload":null}`,
			want: CancelBuild{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.wire))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"event":"teleport","payload":{}}`))
	assert.True(t, errors.Is(err, ErrUnknownEvent))

	_, err = Decode([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = Decode([]byte(`{"event":"request-lock","payload":{"fieldId":42}}`))
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestEveryEventDecodes(t *testing.T) {
	for event := range decoders {
		b, err := json.Marshal(envelope{Event: event})
		require.NoError(t, err)
		msg, err := Decode(b)
		require.NoError(t, err, event)
		assert.Equal(t, event, msg.Event())
	}
}

func TestCloneDetachesState(t *testing.T) {
	orig := SyncFullState{TargetSocketID: "s2", State: State{"pages": json.RawMessage(`[1,2]`)}}
	cp, err := Clone(orig)
	require.NoError(t, err)

	orig.State["pages"][1] = '9'
	assert.JSONEq(t, `[1,2]`, string(cp.(SyncFullState).State["pages"]))
}
