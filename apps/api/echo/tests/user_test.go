package tests

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/trezcool/simplemooc/apps/api/echo"
	"github.com/trezcool/simplemooc/core/user"
	"github.com/trezcool/simplemooc/services/email"
	"github.com/trezcool/simplemooc/tests"
)

func Test_userApi_register(t *testing.T) {
	resetDB(t)

	testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "", false, true)

	tests := []httpTest{
		{
			name: "required fields", body: marchallObj(t, user.RegisterUser{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"username":         "this field is required",
				"email":            "this field is required",
				"password":         "this field is required",
				"password_confirm": "this field is required",
			}),
		},
		{
			name: "password confirm mismatch",
			body: marchallObj(t, user.RegisterUser{Username: "hero", Email: "hero@test.cd", Password: "G0od#Pass", PasswordConfirm: "lol"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"password_confirm": "password_confirm must be equal to Password"}),
		},
		{
			name: "weak password",
			body: marchallObj(t, user.RegisterUser{Username: "hero", Email: "hero@test.cd", Password: "weakpass", PasswordConfirm: "weakpass"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"password": "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
			}),
		},
		{
			name: "username taken",
			body: marchallObj(t, user.RegisterUser{Username: "awe", Email: "hero@test.cd", Password: "G0od#Pass", PasswordConfirm: "G0od#Pass"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "a user with this username already exists"}),
		},
		{
			name: "email taken",
			body: marchallObj(t, user.RegisterUser{Username: "hero", Email: "awe@test.cd", Password: "G0od#Pass", PasswordConfirm: "G0od#Pass"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "a user with this email already exists"}),
		},
		{
			name: "registered",
			body: marchallObj(t, user.RegisterUser{Name: "Hero", Username: "hero", Email: "hero@test.cd", Password: "G0od#Pass", PasswordConfirm: "G0od#Pass"}),
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/register"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; data = %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var usr user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if usr.Username != "hero" || !usr.Active() || usr.IsStaff {
					t.Errorf("unexpected user: %+v", usr)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_login(t *testing.T) {
	resetDB(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "G0od#Pass", false, true)
	testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.cd", "G0od#Pass", false, false)

	tests := []httpTest{
		{
			name: "unknown user", body: marchallObj(t, echoapi.LoginRequest{Username: "lol", Password: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "wrong password", body: marchallObj(t, echoapi.LoginRequest{Username: "awe", Password: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive account", body: marchallObj(t, echoapi.LoginRequest{Username: "ndog", Password: "G0od#Pass"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "login with username", body: marchallObj(t, echoapi.LoginRequest{Username: "awe", Password: "G0od#Pass"}), wantCode: http.StatusOK},
		{name: "login with email", body: marchallObj(t, echoapi.LoginRequest{Username: "awe@test.cd", Password: "G0od#Pass"}), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; data = %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	// login updates LastLogin
	refreshed, err := usrSvc.GetByID(usr.ID)
	if err != nil {
		t.Fatalf("GetByID(): %v", err)
	}
	if refreshed.LastLogin.IsZero() {
		t.Error("LastLogin not set")
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	resetDB(t)

	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog@test.cd", "", false, false)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", false, true)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    "SimpleMOOC",
			Subject:   student.ID,
			Audience:  "SimpleMOOC",
			ExpiresAt: now.Add(time.Hour).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-8 * time.Hour).Unix(), // older than threshold
		Username:     student.Username,
		Email:        student.Email,
	}
	unrefreshableToken, err := echoapi.GenerateToken(unrefreshableClaims)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: getToken(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_passwordReset(t *testing.T) {
	resetDB(t)

	usr := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "G0od#Pass", false, true)
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	type extraTest struct {
		emailSent bool
	}
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required"}),
		},
		{
			name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name: "unknown email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.cd"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: usr.Email}),
			wantData: successData, extra: extraTest{emailSent: true},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset"

		t.Run(tt.name, func(t *testing.T) {
			sentBefore := len(emailsvc.SentMessages)

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if extra, ok := tt.extra.(extraTest); ok {
				sent := len(emailsvc.SentMessages) > sentBefore
				if sent != extra.emailSent {
					t.Errorf("emailSent = %v, want %v", sent, extra.emailSent)
				}
			}
		})
	}

	// confirm the reset with the mailed key
	key := emailsvc.SentMessages[len(emailsvc.SentMessages)-1].TemplateData.(struct {
		User user.User
		Key  string
	}).Key

	body := marchallObj(t, user.ResetUserPassword{Key: key, Password: "N3w#Pass11", PasswordConfirm: "N3w#Pass11"})
	req, rec := newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body)
	app.ServeHTTP(rec, req)
	tt := httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
	}
	checkCodeAndData(t, tt, rec)

	refreshed, err := usrSvc.GetByID(usr.ID)
	if err != nil {
		t.Fatalf("GetByID(): %v", err)
	}
	if err := refreshed.CheckPassword("N3w#Pass11"); err != nil {
		t.Errorf("new password not set: %v", err)
	}

	// a confirmed ticket cannot be reused
	body = marchallObj(t, user.ResetUserPassword{Key: key, Password: "0ther#Pass", PasswordConfirm: "0ther#Pass"})
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body)
	app.ServeHTTP(rec, req)
	tt = httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"key": "password reset not found"}),
	}
	checkCodeAndData(t, tt, rec)
}

func Test_userApi_userQuery(t *testing.T) {
	resetDB(t)

	staff := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", true, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", false, true)
	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "", false, true)

	staffToken := getToken(t, staff)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Staff required", path: "/v1/users", token: getToken(t, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "Get all", path: "/v1/users", token: staffToken, wantData: marchallList(t, staff, student, usr)},
		{name: "search (unknown)", path: "/v1/users?search=lol", token: staffToken, wantData: marchallList(t)},
		{name: "search", path: "/v1/users?search=hero", token: staffToken, wantData: marchallList(t, student)},
		{name: "is_staff=true", path: "/v1/users?is_staff=true", token: staffToken, wantData: marchallList(t, staff)},
		{
			name: "order by -name", path: "/v1/users?ordering=-name", token: staffToken,
			wantData: marchallList(t, usr, student, staff),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userDetail(t *testing.T) {
	resetDB(t)

	staff := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", true, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", false, true)
	other := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "", false, true)

	isActive := false
	tests := []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/v1/users/" + student.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "owner can retrieve", method: http.MethodGet, path: "/v1/users/" + student.ID, token: getToken(t, student),
			wantCode: http.StatusOK, wantData: marchallObj(t, student),
		},
		{
			name: "others cannot retrieve", method: http.MethodGet, path: "/v1/users/" + student.ID, token: getToken(t, other),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{
			name: "staff can retrieve", method: http.MethodGet, path: "/v1/users/" + student.ID, token: getToken(t, staff),
			wantCode: http.StatusOK, wantData: marchallObj(t, student),
		},
		{
			name: "owner cannot deactivate themselves", method: http.MethodPut, path: "/v1/users/" + student.ID, token: getToken(t, student),
			body:     marchallObj(t, user.UpdateUser{IsActive: &isActive}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "staff cannot delete themselves", method: http.MethodDelete, path: "/v1/users/" + staff.ID, token: getToken(t, staff),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "only staff can delete", method: http.MethodDelete, path: "/v1/users/" + other.ID, token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "staff can delete", method: http.MethodDelete, path: "/v1/users/" + other.ID, token: getToken(t, staff), wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusNoContent {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; data = %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				if _, err := usrSvc.GetByID(other.ID); err != user.ErrNotFound {
					t.Errorf("user not deleted: %v", err)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
