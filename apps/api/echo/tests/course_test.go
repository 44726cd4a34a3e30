package tests

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/simplemooc/apps/api/echo"
	"github.com/trezcool/simplemooc/core/course"
	"github.com/trezcool/simplemooc/services/email"
	"github.com/trezcool/simplemooc/tests"
)

func Test_courseApi_query(t *testing.T) {
	resetDB(t)

	django := testutil.CreateCourse(t, crsRepo, "Django", "build web apps with Python")
	gopher := testutil.CreateCourse(t, crsRepo, "Go for Gophers", "systems programming")
	python := testutil.CreateCourse(t, crsRepo, "Python 101", "Python for beginners")

	tests := []httpTest{
		{name: "Get all", path: "/v1/courses", wantData: marchallList(t, django, gopher, python)},
		{name: "search (unknown)", path: "/v1/courses?search=lol", wantData: marchallList(t)},
		{name: "search on name", path: "/v1/courses?search=gopher", wantData: marchallList(t, gopher)},
		// matching name and description returns the course once
		{name: "search on name & description", path: "/v1/courses?search=python", wantData: marchallList(t, django, python)},
		{name: "retrieve", path: "/v1/courses/django", wantData: marchallObj(t, django)},
		{name: "retrieve (unknown)", path: "/v1/courses/lol", wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_courseApi_create(t *testing.T) {
	resetDB(t)

	staff := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", true, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", false, true)
	testutil.CreateCourse(t, crsRepo, "Django", "web")

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Staff required", token: getToken(t, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "name required", token: getToken(t, staff), body: marchallObj(t, course.NewCourse{}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "duplicate slug", token: getToken(t, staff), body: marchallObj(t, course.NewCourse{Name: "Django"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"slug": "a course with this slug already exists"}),
		},
		{
			name: "created", token: getToken(t, staff), body: marchallObj(t, course.NewCourse{Name: "Go for Gophers", Description: "systems"}),
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/courses"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; data = %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var crs course.Course
				if err := json.Unmarshal(rec.Body.Bytes(), &crs); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if crs.Slug != "go-for-gophers" {
					t.Errorf("crs.Slug = %s", crs.Slug)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_courseApi_enroll(t *testing.T) {
	resetDB(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", false, true)
	crs := testutil.CreateCourse(t, crsRepo, "Django", "web")
	token := getToken(t, student)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "enrolled", token: token, wantCode: http.StatusCreated},
		{
			name: "already enrolled", token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"course": "user is already enrolled in this course"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/courses/django/enroll"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; data = %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var enr course.Enrollment
				if err := json.Unmarshal(rec.Body.Bytes(), &enr); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if enr.UserID != student.ID || enr.CourseID != crs.ID || enr.Status != course.EnrollmentApproved {
					t.Errorf("unexpected enrollment: %+v", enr)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	// the student sees their enrollment
	req, rec := newAuthRequest(http.MethodGet, "/v1/enrollments", token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/enrollments code = %v; data = %s", rec.Code, rec.Body.String())
	}
	var enrollments []course.Enrollment
	if err := json.Unmarshal(rec.Body.Bytes(), &enrollments); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if len(enrollments) != 1 || enrollments[0].CourseID != crs.ID {
		t.Errorf("enrollments = %+v", enrollments)
	}
}

func Test_courseApi_setEnrollmentStatus(t *testing.T) {
	resetDB(t)

	staff := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", true, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", false, true)
	crs := testutil.CreateCourse(t, crsRepo, "Django", "web")
	enr := testutil.CreateEnrollment(t, crsRepo, student.ID, crs.ID, course.EnrollmentApproved)

	tests := []httpTest{
		{
			name: "Staff required", path: "/v1/enrollments/" + enr.ID + "/status", token: getToken(t, student),
			body:     marchallObj(t, echoapi.EnrollmentStatusRequest{Status: course.EnrollmentCancelled}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "unknown enrollment", path: "/v1/enrollments/lol/status", token: getToken(t, staff),
			body:     marchallObj(t, echoapi.EnrollmentStatusRequest{Status: course.EnrollmentCancelled}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{
			name: "invalid status", path: "/v1/enrollments/" + enr.ID + "/status", token: getToken(t, staff),
			body:     marchallObj(t, echoapi.EnrollmentStatusRequest{Status: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"status": "invalid enrollment status"}),
		},
		{
			name: "cancelled", path: "/v1/enrollments/" + enr.ID + "/status", token: getToken(t, staff),
			body:     marchallObj(t, echoapi.EnrollmentStatusRequest{Status: course.EnrollmentCancelled}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; data = %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var updated course.Enrollment
				if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if updated.Status != course.EnrollmentCancelled {
					t.Errorf("updated.Status = %s", updated.Status)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_courseApi_lessons(t *testing.T) {
	resetDB(t)

	staff := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", true, true)
	enrolled := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", false, true)
	pending := testutil.CreateUser(t, usrRepo, "King", "king", "king@test.cd", "", false, true)
	outsider := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "", false, true)
	crs := testutil.CreateCourse(t, crsRepo, "Django", "web")
	testutil.CreateEnrollment(t, crsRepo, enrolled.ID, crs.ID, course.EnrollmentApproved)
	testutil.CreateEnrollment(t, crsRepo, pending.ID, crs.ID, course.EnrollmentPending)

	now := time.Now().UTC()
	released, err := crsSvc.AddLesson(crs, course.NewLesson{Name: "Intro", Number: 1, ReleaseDate: null.TimeFrom(now.Add(-24 * time.Hour))})
	if err != nil {
		t.Fatalf("AddLesson(): %v", err)
	}
	unreleased, err := crsSvc.AddLesson(crs, course.NewLesson{Name: "Views", Number: 2, ReleaseDate: null.TimeFrom(now.Add(24 * time.Hour))})
	if err != nil {
		t.Fatalf("AddLesson(): %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "enrollment required", token: getToken(t, outsider), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "approved enrollment required", token: getToken(t, pending), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "enrollees see released lessons", token: getToken(t, enrolled), wantCode: http.StatusOK, wantData: marchallList(t, released)},
		{name: "staff see all lessons", token: getToken(t, staff), wantCode: http.StatusOK, wantData: marchallList(t, released, unreleased)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/courses/django/lessons"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_courseApi_materials(t *testing.T) {
	resetDB(t)

	staff := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", true, true)
	enrolled := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", false, true)
	crs := testutil.CreateCourse(t, crsRepo, "Django", "web")
	testutil.CreateEnrollment(t, crsRepo, enrolled.ID, crs.ID, course.EnrollmentApproved)

	now := time.Now().UTC()
	released, err := crsSvc.AddLesson(crs, course.NewLesson{Name: "Intro", Number: 1, ReleaseDate: null.TimeFrom(now.Add(-24 * time.Hour))})
	if err != nil {
		t.Fatalf("AddLesson(): %v", err)
	}
	unreleased, err := crsSvc.AddLesson(crs, course.NewLesson{Name: "Views", Number: 2, ReleaseDate: null.TimeFrom(now.Add(24 * time.Hour))})
	if err != nil {
		t.Fatalf("AddLesson(): %v", err)
	}

	staffToken := getToken(t, staff)

	// a material carries either an embedded video or a file, not both
	body := marchallObj(t, course.NewMaterial{Name: "Slides", EmbeddedVideo: "https://vid.eo/1", File: "slides.pdf"})
	req, rec := newAuthRequest(http.MethodPost, "/v1/lessons/"+released.ID+"/materials", staffToken, body)
	app.ServeHTTP(rec, req)
	tt := httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"embedded_video": "provide either an embedded video or a file, not both"}),
	}
	checkCodeAndData(t, tt, rec)

	body = marchallObj(t, course.NewMaterial{Name: "Slides", File: "slides.pdf"})
	req, rec = newAuthRequest(http.MethodPost, "/v1/lessons/"+released.ID+"/materials", staffToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST materials code = %v; data = %s", rec.Code, rec.Body.String())
	}
	var mat course.Material
	if err := json.Unmarshal(rec.Body.Bytes(), &mat); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}

	tests := []httpTest{
		{
			name: "enrollees see released materials", path: "/v1/lessons/" + released.ID + "/materials",
			token: getToken(t, enrolled), wantCode: http.StatusOK, wantData: marchallList(t, mat),
		},
		{
			name: "unreleased lessons hidden from enrollees", path: "/v1/lessons/" + unreleased.ID + "/materials",
			token: getToken(t, enrolled), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{
			name: "staff see unreleased materials", path: "/v1/lessons/" + unreleased.ID + "/materials",
			token: staffToken, wantCode: http.StatusOK, wantData: marchallList(t),
		},
		{
			name: "unknown lesson", path: "/v1/lessons/lol/materials",
			token: staffToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_courseApi_announcements(t *testing.T) {
	resetDB(t)

	staff := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", true, true)
	enrolled := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", false, true)
	other := testutil.CreateUser(t, usrRepo, "King", "king", "king@test.cd", "", false, true)
	outsider := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "", false, true)
	crs := testutil.CreateCourse(t, crsRepo, "Django", "web")
	testutil.CreateEnrollment(t, crsRepo, enrolled.ID, crs.ID, course.EnrollmentApproved)
	testutil.CreateEnrollment(t, crsRepo, other.ID, crs.ID, course.EnrollmentApproved)
	testutil.CreateEnrollment(t, crsRepo, outsider.ID, crs.ID, course.EnrollmentCancelled)

	// only staff may announce
	body := marchallObj(t, course.NewAnnouncement{Title: "Exam next week", Content: "Be ready."})
	req, rec := newAuthRequest(http.MethodPost, "/v1/courses/django/announcements", getToken(t, enrolled), body)
	app.ServeHTTP(rec, req)
	tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}
	checkCodeAndData(t, tt, rec)

	req, rec = newAuthRequest(http.MethodPost, "/v1/courses/django/announcements", getToken(t, staff), body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST announcements code = %v; data = %s", rec.Code, rec.Body.String())
	}
	var ann course.Announcement
	if err := json.Unmarshal(rec.Body.Bytes(), &ann); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}

	// one mail per approved enrollee
	if len(emailsvc.SentMessages) != 2 {
		t.Errorf("len(SentMessages) = %d, want 2", len(emailsvc.SentMessages))
	}
	for _, msg := range emailsvc.SentMessages {
		if msg.Subject != ann.Title {
			t.Errorf("msg.Subject = %s, want %s", msg.Subject, ann.Title)
		}
	}

	// enrollees can read and comment
	tests := []httpTest{
		{
			name: "enrollment required", method: http.MethodGet, path: "/v1/courses/django/announcements",
			token: getToken(t, outsider), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "list", method: http.MethodGet, path: "/v1/courses/django/announcements",
			token: getToken(t, enrolled), wantCode: http.StatusOK, wantData: marchallList(t, ann),
		},
		{
			name: "retrieve", method: http.MethodGet, path: "/v1/announcements/" + ann.ID,
			token: getToken(t, enrolled), wantCode: http.StatusOK, wantData: marchallObj(t, ann),
		},
		{
			name: "comment required", method: http.MethodPost, path: "/v1/announcements/" + ann.ID + "/comments",
			token: getToken(t, enrolled), body: marchallObj(t, course.NewComment{}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"comment": "this field is required"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	body = marchallObj(t, course.NewComment{Comment: "Thanks for the heads-up!"})
	req, rec = newAuthRequest(http.MethodPost, "/v1/announcements/"+ann.ID+"/comments", getToken(t, enrolled), body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST comments code = %v; data = %s", rec.Code, rec.Body.String())
	}
	var cmt course.Comment
	if err := json.Unmarshal(rec.Body.Bytes(), &cmt); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/announcements/"+ann.ID+"/comments", getToken(t, other))
	app.ServeHTTP(rec, req)
	tt = httpTest{wantCode: http.StatusOK, wantData: marchallList(t, cmt)}
	checkCodeAndData(t, tt, rec)
}
