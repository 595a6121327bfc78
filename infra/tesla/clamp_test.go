package tesla

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Upstream occasionally reports nonsense battery levels; the snapshot must
// clamp them to [0,100] before anything downstream sees them.
func TestFetchClampsOutOfRangeBattery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":{
			"display_name":"Bilen",
			"charge_state":{"battery_level":150,"battery_range":-20,"charging_state":"Disconnected"}
		}}`))
	}))
	defer srv.Close()

	s := newSource(t, srv.URL, nil)
	st, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, st.BatteryPercent)
	assert.Equal(t, 0.0, st.RangeKM)
}
