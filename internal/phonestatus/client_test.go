package phonestatus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPhoneStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/statuses", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]PhoneStatus{
			{Extension: "201", Registered: true, UserStatus: StatusAvailable, Name: "Sam"},
			{Extension: "202", Registered: true, OnCall: true, UserStatus: StatusAvailable},
		})
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "key-1", Spacing: time.Millisecond})

	statuses, err := client.GetPhoneStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "201", statuses[0].Extension)
}

func TestGetPhoneStatuses_RetriesServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode([]PhoneStatus{})
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Spacing: time.Millisecond})
	_, err := client.GetPhoneStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAvailableForTransfer(t *testing.T) {
	tests := []struct {
		name   string
		status PhoneStatus
		want   bool
	}{
		{"registered idle available", PhoneStatus{Registered: true, UserStatus: StatusAvailable}, true},
		{"not registered", PhoneStatus{Registered: false, UserStatus: StatusAvailable}, false},
		{"on a call", PhoneStatus{Registered: true, OnCall: true, UserStatus: StatusAvailable}, false},
		{"do not disturb", PhoneStatus{Registered: true, UserStatus: StatusDoNotDisturb}, false},
		{"away", PhoneStatus{Registered: true, UserStatus: StatusAway}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.AvailableForTransfer())
		})
	}
}

func TestFindExtension(t *testing.T) {
	statuses := []PhoneStatus{{Extension: "201"}, {Extension: "202"}}

	s, ok := FindExtension(statuses, "202")
	require.True(t, ok)
	assert.Equal(t, "202", s.Extension)

	_, ok = FindExtension(statuses, "999")
	assert.False(t, ok)
}
