package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"todochat/internal/events"
)

// storeProxy forwards task routes to an upstream store and announces
// successful mutations on the bus before the response reaches the caller.
type storeProxy struct {
	rp  *httputil.ReverseProxy
	bus *events.Bus
}

func newStoreProxy(upstream, token, basePath string, bus *events.Bus, logger *zap.Logger) (*storeProxy, error) {
	target, err := url.Parse(strings.TrimSuffix(upstream, "/"))
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", upstream)
	}
	p := &storeProxy{bus: bus}
	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, basePath)
			if pr.In.URL.RawPath != "" {
				pr.Out.URL.RawPath = strings.TrimPrefix(pr.In.URL.RawPath, basePath)
			}
			pr.SetURL(target)
			pr.SetXForwarded()
			if token != "" {
				pr.Out.Header.Set("Authorization", "Bearer "+token)
			} else {
				pr.Out.Header.Del("Authorization")
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			req := resp.Request
			if req.Method == http.MethodGet || req.Method == http.MethodHead {
				return nil
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil
			}
			userID, err := url.PathUnescape(chi.URLParam(req, "user_id"))
			if err != nil {
				return nil
			}
			p.bus.Publish(events.UserTopic(userID))
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("upstream request failed", zap.String("path", r.URL.Path), zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(&apiError{Detail: "task store unavailable"})
		},
	}
	return p, nil
}

func (p *storeProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}
