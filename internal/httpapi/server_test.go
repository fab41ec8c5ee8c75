package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloudlab/internal/catalog"
	"cloudlab/internal/core"
	"cloudlab/internal/infra/persistence/memory"
	"cloudlab/internal/telemetry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	labs, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := memory.NewStore(core.NewDefaultRulesEngine())
	svc := core.NewService(store, labs)
	return NewServer(svc, nil, telemetry.NewMetrics())
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoHeaderContentType, "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestSimulationFlow(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/simulation/start", `{"userId":"alice","labId":"ec2-basics"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", rec.Code, rec.Body.String())
	}
	session := decode(t, rec)
	if session["resumed"] != false {
		t.Fatalf("fresh session = %v", session)
	}

	rec = doJSON(t, s, http.MethodPost, "/simulation/validate",
		`{"userId":"alice","labId":"ec2-basics","stepId":"open-ec2-console","payload":{"url":"https://console.example/ec2/home"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate = %d: %s", rec.Code, rec.Body.String())
	}
	if verdict := decode(t, rec); verdict["success"] != true {
		t.Fatalf("verdict = %v", verdict)
	}

	rec = doJSON(t, s, http.MethodPost, "/simulation/validate",
		`{"userId":"alice","labId":"ec2-basics","stepId":"create-vpc","action":"CREATE_VPC","payload":{"cidrBlock":"10.0.0.0/16"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create-vpc = %d: %s", rec.Code, rec.Body.String())
	}
	verdict := decode(t, rec)
	if verdict["success"] != true || verdict["step_completed"] != true {
		t.Fatalf("create-vpc verdict = %v", verdict)
	}

	rec = doJSON(t, s, http.MethodGet, "/simulation/resources?userId=alice&labId=ec2-basics&type=VPC", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resources = %d: %s", rec.Code, rec.Body.String())
	}
	listing := decode(t, rec)
	if resources, ok := listing["resources"].([]any); !ok || len(resources) != 1 {
		t.Fatalf("resources = %v", listing)
	}

	rec = doJSON(t, s, http.MethodPost, "/simulation/submit", `{"userId":"alice","labId":"ec2-basics"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit = %d: %s", rec.Code, rec.Body.String())
	}
	sub := decode(t, rec)
	if sub["already_submitted"] != false {
		t.Fatalf("submission = %v", sub)
	}
	score, ok := sub["score"].(float64)
	if !ok || score != 25 {
		t.Fatalf("score = %v, want 25 (2 of 8 steps)", sub["score"])
	}
}

// Request bodies and query strings bind the published field names; the old
// snake_case aliases are gone.
func TestRequestFieldNames(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/simulation/start", `{"userId":"alice","labId":"ec2-basics"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("camelCase start = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodPost, "/simulation/start", `{"user_id":"alice","lab_id":"ec2-basics"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("snake_case start = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/simulation/validate",
		`{"userId":"alice","labId":"ec2-basics","action":"CREATE_VPC","payload":{"cidrBlock":"10.0.0.0/16"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("camelCase validate = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/simulation/resources?userId=alice&labId=ec2-basics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("camelCase resources query = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/simulation/start", `{"userId":"alice","labId":"no-such-lab"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown lab = %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["code"] != "NOT_FOUND" || body["success"] != false {
		t.Fatalf("error body = %v", body)
	}

	// Validation rejects a body missing required fields before the service runs.
	rec = doJSON(t, s, http.MethodPost, "/simulation/start", `{"userId":"alice"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing labId = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/simulation/resources?userId=alice", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing labId query = %d", rec.Code)
	}

	// Illegal state transitions surface as conflicts.
	doJSON(t, s, http.MethodPost, "/simulation/start", `{"userId":"bob","labId":"ec2-basics"}`)
	rec = doJSON(t, s, http.MethodPost, "/simulation/validate",
		`{"userId":"bob","labId":"ec2-basics","action":"STOP_INSTANCE","payload":{"instanceId":"i-missing"}}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("stop unknown instance = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	s := newTestServer(t)
	if rec := doJSON(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	rec := doJSON(t, s, http.MethodGet, "/simulation/labs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("labs = %d", rec.Code)
	}
	body := decode(t, rec)
	labs, ok := body["labs"].([]any)
	if !ok || len(labs) < 2 {
		t.Fatalf("labs body = %v", body)
	}
}
