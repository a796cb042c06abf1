package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcoot/skirmish/internal/metrics"
	"github.com/mcoot/skirmish/internal/testutil"
)

func (s *ServiceSuite) router() http.Handler {
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	m.SessionsActive(3)

	return NewRouter(RouterConfig{
		Logger:   testutil.NopLogger(),
		Clock:    s.clock,
		Service:  s.service,
		Commands: s.commands,
		Gatherer: registry,
	})
}

func (s *ServiceSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reqBody io.Reader = http.NoBody
	if raw, ok := body.(string); ok {
		reqBody = strings.NewReader(raw)
	} else if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		reqBody = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router().ServeHTTP(rr, req)
	return rr
}

func (s *ServiceSuite) decodeError(rr *httptest.ResponseRecorder) APIError {
	var resp ErrorResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error
}

func (s *ServiceSuite) TestHTTPHealth() {
	rr := s.do(http.MethodGet, "/admin/v1/health", nil)

	s.Equal(http.StatusOK, rr.Code)
	s.Equal("application/json", rr.Header().Get("Content-Type"))
	s.JSONEq(`{"status":"ok"}`, rr.Body.String())
}

func (s *ServiceSuite) TestHTTPStatus() {
	s.login(s.account("online", 0).ID)

	rr := s.do(http.MethodGet, "/admin/v1/status", nil)

	s.Require().Equal(http.StatusOK, rr.Code)
	var st Status
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &st))
	s.Equal(1, st.Sessions)
	s.Equal(7, st.Connections)
	s.False(st.Maintenance)
}

func (s *ServiceSuite) TestHTTPExecuteCommand() {
	rr := s.do(http.MethodPost, "/admin/v1/commands", Request{Command: "maintenance", Args: []string{"on"}})

	s.Require().Equal(http.StatusOK, rr.Code)
	var res Result
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &res))
	s.Equal("maintenance", res.Command)
	s.Equal("maintenance on", res.Message)
	s.True(s.mode.Enabled())
}

func (s *ServiceSuite) TestHTTPListCommands() {
	rr := s.do(http.MethodGet, "/admin/v1/commands", nil)

	s.Require().Equal(http.StatusOK, rr.Code)
	var infos []CommandInfo
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &infos))
	s.Len(infos, 7)
	s.Equal(CommandInfo{Name: "ban", Usage: "ban <account-id>"}, infos[0])
}

func (s *ServiceSuite) TestHTTPCommandErrors() {
	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed body", "{not json", http.StatusBadRequest, CodeInvalidRequest},
		{"missing command", Request{}, http.StatusBadRequest, CodeInvalidRequest},
		{"unknown command", Request{Command: "explode"}, http.StatusNotFound, CodeUnknownCommand},
		{"wrong arity", Request{Command: "kick"}, http.StatusBadRequest, CodeUsage},
		{"unknown account", Request{Command: "ban", Args: []string{"404"}}, http.StatusNotFound, CodeAccountNotFound},
		{"offline account", Request{Command: "kick", Args: []string{"404"}}, http.StatusConflict, CodeNotOnline},
		{"unknown field", Request{Command: "set", Args: []string{"1", "gems", "5"}}, http.StatusBadRequest, CodeUnknownField},
	}

	s.account("existing", 0)
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rr := s.do(http.MethodPost, "/admin/v1/commands", tt.body)
			s.Equal(tt.status, rr.Code)
			s.Equal(tt.code, s.decodeError(rr).Code)
		})
	}
}

func (s *ServiceSuite) TestHTTPUnknownRoute() {
	rr := s.do(http.MethodGet, "/admin/v1/nothing", nil)

	s.Equal(http.StatusNotFound, rr.Code)
	s.Equal(CodeNotFound, s.decodeError(rr).Code)
}

func (s *ServiceSuite) TestHTTPMetrics() {
	rr := s.do(http.MethodGet, "/metrics", nil)

	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "skirmish_sessions_active 3")
}
