package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/simplemooc/core"
	"github.com/trezcool/simplemooc/core/user"
	"github.com/trezcool/simplemooc/services/email"
	"github.com/trezcool/simplemooc/storage/database/dummy"
	"github.com/trezcool/simplemooc/tests"
)

func setup(t *testing.T, conf *core.Config) (user.Service, user.Repository) {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	repo := dummydb.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ClearSentMessages()
	return user.NewServiceMock(repo, mailSvc, conf), repo
}

func Test_service_CheckUniqueness(t *testing.T) {
	conf := &core.Config{TestMode: true}
	svc, repo := setup(t, conf)

	usr := testutil.CreateUser(t, repo, "User", "awe", "awe@test.cd", "", false, true)

	tests := []struct {
		name      string
		uname     string
		email     string
		exclUsers []user.User
		wantField string
	}{
		{name: "available", uname: "hero", email: "hero@test.cd"},
		{name: "username taken", uname: "awe", email: "hero@test.cd", wantField: "username"},
		{name: "email taken", uname: "hero", email: "awe@test.cd", wantField: "email"},
		{name: "self excluded", uname: "awe", email: "awe@test.cd", exclUsers: []user.User{usr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckUniqueness(tt.uname, tt.email, tt.exclUsers...)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("CheckUniqueness() unexpected error = %v", err)
				}
				return
			}
			vErr, ok := err.(*core.ValidationError)
			if !ok {
				t.Fatalf("CheckUniqueness() error = %v, want *core.ValidationError", err)
			}
			if len(vErr.Fields) != 1 || vErr.Fields[0].Field != tt.wantField {
				t.Errorf("CheckUniqueness() fields = %v, wantField %s", vErr.Fields, tt.wantField)
			}
		})
	}
}

func Test_service_RequestPasswordReset(t *testing.T) {
	conf := &core.Config{TestMode: true}
	svc, repo := setup(t, conf)

	usr := testutil.CreateUser(t, repo, "User", "awe", "awe@test.cd", "mdr", false, true)

	if err := svc.RequestPasswordReset("unknown@test.cd"); err != user.ErrNotFound {
		t.Errorf("RequestPasswordReset() error = %v, want %v", err, user.ErrNotFound)
	}

	if err := svc.RequestPasswordReset(usr.Email); err != nil {
		t.Fatalf("RequestPasswordReset() failed: %v", err)
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("len(SentMessages) = %d, want 1", len(emailsvc.SentMessages))
	}
	msg := emailsvc.SentMessages[0]
	if msg.Subject != "Password Reset" {
		t.Errorf("msg.Subject = %s", msg.Subject)
	}
	if len(msg.To) != 1 || msg.To[0].Address != usr.Email {
		t.Errorf("msg.To = %v, want %s", msg.To, usr.Email)
	}
	data, ok := msg.TemplateData.(struct {
		User user.User
		Key  string
	})
	if !ok {
		t.Fatalf("unexpected TemplateData: %+v", msg.TemplateData)
	}
	if data.Key == "" {
		t.Error("reset key not set")
	}
	if _, err := repo.GetPasswordResetByKey(context.Background(), data.Key); err != nil {
		t.Errorf("reset ticket not persisted: %v", err)
	}
}

func Test_service_ResetPassword(t *testing.T) {
	conf := &core.Config{TestMode: true}
	svc, repo := setup(t, conf)

	usr := testutil.CreateUser(t, repo, "User", "awe", "awe@test.cd", "mdr", false, true)
	if err := svc.RequestPasswordReset(usr.Email); err != nil {
		t.Fatalf("RequestPasswordReset() failed: %v", err)
	}
	key := emailsvc.SentMessages[0].TemplateData.(struct {
		User user.User
		Key  string
	}).Key

	if err := svc.ResetPassword(user.ResetUserPassword{Key: "lol", Password: "n3wP@ss", PasswordConfirm: "n3wP@ss"}); err != user.ErrResetNotFound {
		t.Errorf("ResetPassword(unknown key) error = %v, want %v", err, user.ErrResetNotFound)
	}

	if err := svc.ResetPassword(user.ResetUserPassword{Key: key, Password: "n3wP@ss", PasswordConfirm: "n3wP@ss"}); err != nil {
		t.Fatalf("ResetPassword() failed: %v", err)
	}
	refreshed, err := svc.GetByID(usr.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if err := refreshed.CheckPassword("n3wP@ss"); err != nil {
		t.Errorf("new password not set: %v", err)
	}

	// a confirmed ticket cannot be reused
	if err := svc.ResetPassword(user.ResetUserPassword{Key: key, Password: "other", PasswordConfirm: "other"}); err != user.ErrResetNotFound {
		t.Errorf("ResetPassword(confirmed key) error = %v, want %v", err, user.ErrResetNotFound)
	}
}

func Test_service_ResetPassword_expiredKey(t *testing.T) {
	conf := &core.Config{TestMode: true, PasswordResetTimeout: time.Hour}
	svc, repo := setup(t, conf)

	usr := testutil.CreateUser(t, repo, "User", "awe", "awe@test.cd", "mdr", false, true)
	reset, err := repo.CreatePasswordReset(context.Background(), user.PasswordReset{
		UserID:    usr.ID,
		Key:       user.MakeResetKey(),
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreatePasswordReset() failed: %v", err)
	}

	err = svc.ResetPassword(user.ResetUserPassword{Key: reset.Key, Password: "n3wP@ss", PasswordConfirm: "n3wP@ss"})
	if err != user.ErrResetExpired {
		t.Errorf("ResetPassword(expired key) error = %v, want %v", err, user.ErrResetExpired)
	}
}

func Test_service_ChangePassword(t *testing.T) {
	conf := &core.Config{TestMode: true}
	svc, repo := setup(t, conf)

	usr := testutil.CreateUser(t, repo, "User", "awe", "awe@test.cd", "mdr", false, true)

	if _, err := svc.ChangePassword(usr, user.ChangeUserPassword{OldPassword: "lol", Password: "n3wP@ss", PasswordConfirm: "n3wP@ss"}); err == nil {
		t.Error("ChangePassword(wrong old password) should fail")
	}

	if _, err := svc.ChangePassword(usr, user.ChangeUserPassword{OldPassword: "mdr", Password: "n3wP@ss", PasswordConfirm: "n3wP@ss"}); err != nil {
		t.Fatalf("ChangePassword() failed: %v", err)
	}
	refreshed, err := svc.GetByID(usr.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if err := refreshed.CheckPassword("n3wP@ss"); err != nil {
		t.Errorf("new password not set: %v", err)
	}
}
