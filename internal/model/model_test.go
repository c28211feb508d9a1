package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RecordingStatus
		want     bool
	}{
		{RecordingStatusUploaded, RecordingStatusProcessing, true},
		{RecordingStatusProcessing, RecordingStatusCompleted, true},
		{RecordingStatusProcessing, RecordingStatusFailed, true},
		{RecordingStatusUploaded, RecordingStatusCompleted, false},
		{RecordingStatusUploaded, RecordingStatusFailed, false},
		{RecordingStatusCompleted, RecordingStatusProcessing, false},
		{RecordingStatusFailed, RecordingStatusProcessing, false},
		{RecordingStatusProcessing, RecordingStatusProcessing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStringList_RoundTrip(t *testing.T) {
	in := StringList{"多提问", "控制语速"}

	v, err := in.Value()
	require.NoError(t, err)

	var out StringList
	require.NoError(t, out.Scan([]byte(v.(string))))
	assert.Equal(t, in, out)

	var empty StringList
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
}

func TestSegments_Scan(t *testing.T) {
	var s Segments
	require.NoError(t, s.Scan(`[{"role":"教师","text":"上课"}]`))
	assert.Equal(t, Segments{{Role: "教师", Text: "上课"}}, s)
	assert.Error(t, s.Scan(42))
}

func TestRawJSON_EmbedsVerbatim(t *testing.T) {
	r := Report{ID: "r1", Analysis: RawJSON(`{"overall_score":88}`)}

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, map[string]any{"overall_score": float64(88)}, decoded["analysis"])
	assert.Nil(t, decoded["teacher_speech_rate"])

	var back Report
	require.NoError(t, json.Unmarshal(b, &back))
	assert.JSONEq(t, `{"overall_score":88}`, string(back.Analysis))
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Minute)))
}

func TestUser_IsAdmin(t *testing.T) {
	assert.True(t, (&User{Role: RoleAdmin}).IsAdmin())
	assert.False(t, (&User{Role: RoleUser}).IsAdmin())
	var nilUser *User
	assert.False(t, nilUser.IsAdmin())
}
