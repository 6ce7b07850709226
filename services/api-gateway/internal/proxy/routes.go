// Package proxy forwards authenticated requests to the upstream services by
// path prefix.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/fleetmanager/backend/gomicro/health"
	"github.com/fleetmanager/backend/gomicro/logger"
	gwprom "github.com/fleetmanager/backend/services/api-gateway/prometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Route sends every path under Prefix to one of Targets.
type Route struct {
	Prefix  string
	Targets []*url.URL
}

// ParseRoutes reads "prefix=url|url,prefix=url". Routes are returned longest
// prefix first so the most specific one wins.
func ParseRoutes(raw string) ([]Route, error) {
	var routes []Route
	seen := make(map[string]bool)

	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		prefix, targets, ok := strings.Cut(item, "=")
		prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
		if !ok || !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("invalid route %q: want /prefix=url", item)
		}
		if seen[prefix] {
			return nil, fmt.Errorf("duplicate route prefix %q", prefix)
		}
		seen[prefix] = true

		r := Route{Prefix: prefix}
		for _, target := range strings.Split(targets, "|") {
			u, err := url.Parse(strings.TrimSpace(target))
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("invalid upstream %q for %s", target, prefix)
			}
			r.Targets = append(r.Targets, u)
		}
		routes = append(routes, r)
	}
	if len(routes) == 0 {
		return nil, errors.New("no gateway routes configured")
	}

	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].Prefix) > len(routes[j].Prefix)
	})
	return routes, nil
}

// Matches reports whether path falls under the route.
func (r Route) Matches(path string) bool {
	return path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/")
}

// Middleware proxies requests matching one of routes and passes the rest to
// the next handler. Upstreams of a route are used round robin.
func Middleware(routes []Route, metrics *gwprom.Metrics) echo.MiddlewareFunc {
	proxies := make([]echo.MiddlewareFunc, len(routes))
	for i, r := range routes {
		targets := make([]*echomiddleware.ProxyTarget, 0, len(r.Targets))
		for _, u := range r.Targets {
			targets = append(targets, &echomiddleware.ProxyTarget{Name: u.Host, URL: u})
		}
		prefix := r.Prefix
		proxies[i] = echomiddleware.ProxyWithConfig(echomiddleware.ProxyConfig{
			Balancer: echomiddleware.NewRoundRobinBalancer(targets),
			ModifyResponse: func(resp *http.Response) error {
				metrics.RecordProxied(prefix, resp.StatusCode)
				return nil
			},
			ErrorHandler: func(c echo.Context, err error) error {
				metrics.RecordUpstreamError(prefix)
				logger.FromEcho(c).Error("Upstream request failed",
					zap.String("route", prefix),
					zap.Error(err))
				return echo.NewHTTPError(http.StatusBadGateway, "upstream service unavailable")
			},
		})
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		handlers := make([]echo.HandlerFunc, len(proxies))
		for i, p := range proxies {
			handlers[i] = p(next)
		}
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for i, r := range routes {
				if r.Matches(path) {
					return handlers[i](c)
				}
			}
			return next(c)
		}
	}
}

// HealthChecks returns one check per route, probing the first upstream's
// /actuator/health.
func HealthChecks(routes []Route, client *http.Client) map[string]health.Check {
	checks := make(map[string]health.Check, len(routes))
	for _, r := range routes {
		target := r.Targets[0].JoinPath("/actuator/health").String()
		checks["upstream:"+r.Prefix] = func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%s returned %d", target, resp.StatusCode)
			}
			return nil
		}
	}
	return checks
}

// NewHealthClient returns the HTTP client used for upstream health probes.
func NewHealthClient() *http.Client {
	return &http.Client{Timeout: 2 * time.Second}
}
