// SPDX-License-Identifier: GPL-3.0-or-later

package monitor

import (
	"net/http"
	"strconv"

	"github.com/meterflow/meterflow/pkg/meter"
)

// statusRecorder captures the status code the downstream handler writes.
type statusRecorder struct {
	http.ResponseWriter

	req    *http.Request
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Handler returns middleware timing every request through the timer. Each
// measurement is tagged with method, path and status_code derived from the
// finished request. The timer's augmentor is replaced.
func Handler(t *meter.Timer, next http.Handler) http.Handler {
	t.SetAugmentor(func(_ meter.Meter, result any, _ []any) map[string]string {
		rec, ok := result.(*statusRecorder)
		if !ok {
			return nil
		}
		return map[string]string{
			"method":      rec.req.Method,
			"path":        rec.req.URL.Path,
			"status_code": strconv.Itoa(rec.status),
		}
	})

	timed := t.Wrap(func(args ...any) (any, error) {
		rec := args[0].(*statusRecorder)
		next.ServeHTTP(rec, rec.req)
		return rec, nil
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, req: r, status: http.StatusOK}
		_, _ = timed(rec)
	})
}

// clientCall pairs an outbound request with its response for tag derivation.
type clientCall struct {
	req  *http.Request
	resp *http.Response
}

type timingRoundTripper struct {
	timer *meter.Timer
	next  http.RoundTripper
}

// RoundTripper returns a transport timing every outbound request through
// the timer, tagged with method, url and status_code. A nil next means
// http.DefaultTransport. The timer's augmentor is replaced.
func RoundTripper(t *meter.Timer, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}

	t.SetAugmentor(func(_ meter.Meter, result any, _ []any) map[string]string {
		call, ok := result.(*clientCall)
		if !ok {
			return nil
		}
		return map[string]string{
			"method":      call.req.Method,
			"url":         call.req.URL.String(),
			"status_code": strconv.Itoa(call.resp.StatusCode),
		}
	})

	return &timingRoundTripper{timer: t, next: next}
}

func (rt *timingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	result, err := rt.timer.Wrap(func(args ...any) (any, error) {
		resp, err := rt.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		return &clientCall{req: req, resp: resp}, nil
	})()
	if err != nil {
		return nil, err
	}
	return result.(*clientCall).resp, nil
}
