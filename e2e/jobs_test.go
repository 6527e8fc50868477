package e2e

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/printworks/jobtrack/internal/model"
)

func TestCreateJob(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs",
		`{"customerName":"Acme Foods","productName":"Cereal carton","quantity":5000,"priority":"HIGH"}`)
	assertStatus(t, resp, http.StatusCreated)

	body := parseJSON(t, resp)
	if body["status"] != "CREATED" {
		t.Errorf("expected CREATED, got %v", body["status"])
	}
	if body["displayCode"] != "JC-0001" {
		t.Errorf("expected JC-0001, got %v", body["displayCode"])
	}
	if body["progressPercentage"] != float64(5) {
		t.Errorf("expected progress 5, got %v", body["progressPercentage"])
	}
	if body["version"] != float64(1) {
		t.Errorf("expected version 1, got %v", body["version"])
	}
}

func TestCreateJob_ValidationError(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs", `{"productName":"Carton","quantity":0}`)
	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	if code := errorCode(t, body); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestCreateJob_WorkerRejected(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, designerActor, http.MethodPost, "/api/jobs",
		`{"customerName":"Acme","productName":"Carton","quantity":10}`)
	assertStatus(t, resp, http.StatusConflict)
	if code := errorCode(t, parseJSON(t, resp)); code != "INVALID_TRANSITION" {
		t.Errorf("expected INVALID_TRANSITION, got %s", code)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, viewerActor, http.MethodGet, "/api/jobs/does-not-exist", "")
	assertStatus(t, resp, http.StatusNotFound)
	if code := errorCode(t, parseJSON(t, resp)); code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %s", code)
	}
}

func TestPrepressReviewCycle(t *testing.T) {
	ta := setupApp(t)
	job := createJob(t, ta, "Northwind")

	// HOD assigns with a due date
	resp := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/assign",
		fmt.Sprintf(`{"workerId":"D1","workerName":"Dana","dueDate":%q,"version":%d}`, dueIn(10*24*time.Hour), job.Version))
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	if body["status"] != "ASSIGNED_TO_PREPRESS" {
		t.Fatalf("expected ASSIGNED_TO_PREPRESS, got %v", body["status"])
	}
	job = refOf(t, body)

	// Designer starts and submits
	resp = doAuthRequest(t, ta.app, designerActor, http.MethodPost, "/api/jobs/"+job.ID+"/transitions",
		fmt.Sprintf(`{"action":"START","version":%d}`, job.Version))
	assertStatus(t, resp, http.StatusOK)
	job = refOf(t, parseJSON(t, resp))

	resp = doAuthRequest(t, ta.app, designerActor, http.MethodPost, "/api/jobs/"+job.ID+"/transitions",
		fmt.Sprintf(`{"action":"SUBMIT_FOR_REVIEW","version":%d,"notes":"proof attached"}`, job.Version))
	assertStatus(t, resp, http.StatusOK)
	job = refOf(t, parseJSON(t, resp))

	// HOD rejects, designer resubmits, HOD approves
	resp = doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/review",
		fmt.Sprintf(`{"decision":"REJECT","feedback":"bleed too small","version":%d}`, job.Version))
	assertStatus(t, resp, http.StatusOK)
	body = parseJSON(t, resp)
	subs := body["departmentSubStatus"].(map[string]interface{})
	if subs["PREPRESS"] != "IN_PROGRESS" {
		t.Errorf("expected PREPRESS IN_PROGRESS after reject, got %v", subs["PREPRESS"])
	}
	job = refOf(t, body)

	resp = doAuthRequest(t, ta.app, designerActor, http.MethodPost, "/api/jobs/"+job.ID+"/transitions",
		fmt.Sprintf(`{"action":"SUBMIT_FOR_REVIEW","version":%d}`, job.Version))
	assertStatus(t, resp, http.StatusOK)
	job = refOf(t, parseJSON(t, resp))

	resp = doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/review",
		fmt.Sprintf(`{"decision":"APPROVE","version":%d}`, job.Version))
	assertStatus(t, resp, http.StatusOK)
	body = parseJSON(t, resp)
	if body["status"] != "ASSIGNED_TO_INVENTORY" {
		t.Errorf("expected ASSIGNED_TO_INVENTORY, got %v", body["status"])
	}
	if body["currentDepartment"] != "INVENTORY" {
		t.Errorf("expected INVENTORY, got %v", body["currentDepartment"])
	}
	if _, ok := body["assignedTo"]; ok {
		t.Error("approved job should have no assignee in the next department")
	}

	// Every accepted transition is in the history, in order
	resp = doAuthRequest(t, ta.app, viewerActor, http.MethodGet, "/api/jobs/"+job.ID+"/history", "")
	assertStatus(t, resp, http.StatusOK)
	history := parseJSON(t, resp)["history"].([]interface{})
	want := []string{"ASSIGN", "START", "SUBMIT_FOR_REVIEW", "REJECT", "SUBMIT_FOR_REVIEW", "APPROVE"}
	if len(history) != len(want) {
		t.Fatalf("expected %d history entries, got %d", len(want), len(history))
	}
	for i, action := range want {
		if got := history[i].(map[string]interface{})["action"]; got != action {
			t.Errorf("history[%d] = %v, want %s", i, got, action)
		}
	}
}

func TestTransition_StaleVersion(t *testing.T) {
	ta := setupApp(t)
	job := createJob(t, ta, "Contoso")

	assign := fmt.Sprintf(`{"workerId":"D1","dueDate":%q,"version":%d}`, dueIn(72*time.Hour), job.Version)
	resp := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/assign", assign)
	assertStatus(t, resp, http.StatusOK)

	resp = doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/transitions",
		fmt.Sprintf(`{"action":"HOLD","version":%d}`, job.Version))
	assertStatus(t, resp, http.StatusConflict)

	body := parseJSON(t, resp)
	if code := errorCode(t, body); code != "STALE_WRITE" {
		t.Fatalf("expected STALE_WRITE, got %s", code)
	}
	details := body["error"].(map[string]interface{})["details"].(map[string]interface{})
	if details["current"] != float64(2) {
		t.Errorf("expected current version 2, got %v", details["current"])
	}
}

func TestTransition_OnlyAssigneeMayStart(t *testing.T) {
	ta := setupApp(t)
	job := createJob(t, ta, "Fabrikam")

	resp := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/assign",
		fmt.Sprintf(`{"workerId":"D1","dueDate":%q,"version":%d}`, dueIn(72*time.Hour), job.Version))
	assertStatus(t, resp, http.StatusOK)
	job = refOf(t, parseJSON(t, resp))

	resp = doAuthRequest(t, ta.app, otherDesigner, http.MethodPost, "/api/jobs/"+job.ID+"/transitions",
		fmt.Sprintf(`{"action":"START","version":%d}`, job.Version))
	assertStatus(t, resp, http.StatusConflict)
	if code := errorCode(t, parseJSON(t, resp)); code != "INVALID_TRANSITION" {
		t.Errorf("expected INVALID_TRANSITION, got %s", code)
	}

	// The refused request changed nothing
	resp = doAuthRequest(t, ta.app, viewerActor, http.MethodGet, "/api/jobs/"+job.ID, "")
	if got := refOf(t, parseJSON(t, resp)).Version; got != job.Version {
		t.Errorf("version moved from %d to %d", job.Version, got)
	}
}

func TestAssign_Errors(t *testing.T) {
	ta := setupApp(t)
	job := createJob(t, ta, "Litware")

	resp := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/assign",
		fmt.Sprintf(`{"workerId":"D1","version":%d}`, job.Version))
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, parseJSON(t, resp)); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR for missing due date, got %s", code)
	}

	resp = doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/assign",
		fmt.Sprintf(`{"workerId":"D1","dueDate":%q,"version":%d}`, dueIn(72*time.Hour), job.Version))
	assertStatus(t, resp, http.StatusOK)
	job = refOf(t, parseJSON(t, resp))

	resp = doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/assign",
		fmt.Sprintf(`{"workerId":"D2","version":%d}`, job.Version))
	assertStatus(t, resp, http.StatusConflict)
	if code := errorCode(t, parseJSON(t, resp)); code != "ALREADY_ASSIGNED" {
		t.Errorf("expected ALREADY_ASSIGNED, got %s", code)
	}

	resp = doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/reassign",
		fmt.Sprintf(`{"workerId":"D2","version":%d}`, job.Version))
	assertStatus(t, resp, http.StatusOK)
	assignee := parseJSON(t, resp)["assignedTo"].(map[string]interface{})
	if assignee["id"] != "D2" {
		t.Errorf("expected D2 after reassign, got %v", assignee["id"])
	}
}

func TestTransition_IdempotentReplay(t *testing.T) {
	ta := setupApp(t)
	job := createJob(t, ta, "Tailspin")

	sub := ta.broker.Subscribe(model.TopicJob(job.ID))
	defer sub.Close()

	body := fmt.Sprintf(`{"action":"HOLD","version":%d,"idempotencyKey":"hold-1"}`, job.Version)
	first := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/transitions", body)
	assertStatus(t, first, http.StatusOK)
	firstBody := parseJSON(t, first)
	firstRef := refOf(t, firstBody)
	if replayed, _ := firstBody["replayed"].(bool); replayed {
		t.Error("first request reported as replayed")
	}

	second := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/transitions", body)
	assertStatus(t, second, http.StatusOK)
	secondBody := parseJSON(t, second)
	secondRef := refOf(t, secondBody)

	if firstRef.Version != secondRef.Version {
		t.Errorf("replay applied twice: versions %d and %d", firstRef.Version, secondRef.Version)
	}
	if replayed, _ := secondBody["replayed"].(bool); !replayed {
		t.Error("expected replayed=true on the repeated request")
	}

	// the same key for a different action is refused, not swallowed
	release := fmt.Sprintf(`{"action":"RELEASE","version":%d,"idempotencyKey":"hold-1"}`, firstRef.Version)
	resp := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+job.ID+"/transitions", release)
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, parseJSON(t, resp)); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR for reused key, got %s", code)
	}

	select {
	case e := <-sub.Events():
		if e.NewStatus != model.StatusOnHold {
			t.Errorf("expected ON_HOLD event, got %s", e.NewStatus)
		}
	case <-time.After(time.Second):
		t.Fatal("no event for the applied transition")
	}
	select {
	case e := <-sub.Events():
		t.Errorf("replay published an event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestListJobs_Filters(t *testing.T) {
	ta := setupApp(t)
	first := createJob(t, ta, "Northwind")
	createJob(t, ta, "Contoso")

	resp := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+first.ID+"/assign",
		fmt.Sprintf(`{"workerId":"D1","dueDate":%q,"version":%d}`, dueIn(24*time.Hour), first.Version))
	assertStatus(t, resp, http.StatusOK)

	cases := []struct {
		query string
		total float64
	}{
		{"", 2},
		{"?status=created", 1},
		{"?assignee=D1", 1},
		{"?q=contoso", 1},
		{"?urgent=true", 1},
		{"?department=PREPRESS", 1},
	}
	for _, tc := range cases {
		resp := doAuthRequest(t, ta.app, viewerActor, http.MethodGet, "/api/jobs"+tc.query, "")
		assertStatus(t, resp, http.StatusOK)
		if got := parseJSON(t, resp)["total"]; got != tc.total {
			t.Errorf("GET /api/jobs%s total = %v, want %v", tc.query, got, tc.total)
		}
	}

	resp = doAuthRequest(t, ta.app, viewerActor, http.MethodGet, "/api/jobs?status=SHIPPED", "")
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestBulkAction_PartialFailure(t *testing.T) {
	ta := setupApp(t)
	a := createJob(t, ta, "Alpha")
	b := createJob(t, ta, "Bravo")

	resp := doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/"+b.ID+"/transitions",
		fmt.Sprintf(`{"action":"CANCEL","version":%d}`, b.Version))
	assertStatus(t, resp, http.StatusOK)

	resp = doAuthRequest(t, ta.app, hodActor, http.MethodPost, "/api/jobs/bulk",
		fmt.Sprintf(`{"jobIds":[%q,%q,"missing"],"action":"HOLD"}`, a.ID, b.ID))
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["succeeded"] != float64(1) || body["failed"] != float64(2) {
		t.Errorf("expected 1 ok / 2 failed, got %v / %v", body["succeeded"], body["failed"])
	}
	results := body["results"].([]interface{})
	codes := []string{"", "INVALID_TRANSITION", "NOT_FOUND"}
	for i, want := range codes {
		r := results[i].(map[string]interface{})
		got, _ := r["code"].(string)
		if got != want {
			t.Errorf("results[%d].code = %q, want %q", i, got, want)
		}
	}
}
