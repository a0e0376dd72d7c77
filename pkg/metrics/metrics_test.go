package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersExposed(t *testing.T) {
	Rejections.WithLabelValues("send", "muted").Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(Rejections.WithLabelValues("send", "muted")))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `groupchat_moderation_rejections_total{action="send",reason="muted"} 1`))
	require.Contains(t, body, "groupchat_ws_subscribers")
}
