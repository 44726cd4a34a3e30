package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/simplemooc/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrResetNotFound  = errors.New("password reset not found")
	ErrResetExpired   = errors.New("password reset has expired")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User, isActive, isStaff *bool) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error

		CreatePasswordReset(ctx context.Context, reset PasswordReset) (PasswordReset, error)
		GetPasswordResetByKey(ctx context.Context, key string) (PasswordReset, error)
		ConfirmPasswordReset(ctx context.Context, id string) error
	}

	Service interface {
		CheckUniqueness(uname, email string, exclUsers ...User) error
		Register(ru RegisterUser) (User, error)
		Create(nu NewUser) (User, error)
		Query(filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		GetByID(id string) (User, error)
		GetByUsername(uname string) (User, error)
		GetByEmail(email string) (User, error)
		GetByUsernameOrEmail(uname string) (User, error)
		Update(id string, uu UpdateUser) (User, error)
		ChangePassword(usr User, cp ChangeUserPassword) (User, error)
		SetLastLogin(usr User) (User, error)
		RequestPasswordReset(email string) error
		ResetPassword(rp ResetUserPassword) error
		Delete(ids ...string) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
	}
	return nil
}

// Register creates a regular active account from a self-signup.
func (svc *service) Register(ru RegisterUser) (User, error) {
	return svc.Create(NewUser{
		Name:            ru.Name,
		Username:        ru.Username,
		Email:           ru.Email,
		Password:        ru.Password,
		PasswordConfirm: ru.PasswordConfirm,
	})
}

func (svc *service) Create(nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsStaff:   nu.IsStaff,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(context.Background(), usr)
}

func (svc *service) Query(filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(context.Background(), filter, ordering...)
}

func (svc *service) GetByID(id string) (User, error) {
	return svc.repo.GetUser(context.Background(), GetFilter{ID: id})
}

func (svc *service) GetByUsername(uname string) (User, error) {
	return svc.repo.GetUser(context.Background(), GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

func (svc *service) GetByEmail(email string) (User, error) {
	return svc.repo.GetUser(context.Background(), GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	return svc.repo.GetUser(context.Background(), GetFilter{UsernameOrEmail: []string{uname}})
}

func (svc *service) Update(id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Name:      uu.Name,
		Username:  uu.Username,
		Email:     uu.Email,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.UpdateUser(context.Background(), usr, uu.IsActive, uu.IsStaff)
}

// ChangePassword sets a new password after checking the old one.
func (svc *service) ChangePassword(usr User, cp ChangeUserPassword) (User, error) {
	if err := usr.CheckPassword(cp.OldPassword); err != nil {
		return User{}, core.NewValidationError(err, core.FieldError{Field: "old_password", Error: "wrong password"})
	}
	if err := usr.SetPassword(cp.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(context.Background(), usr, nil, nil)
}

func (svc *service) SetLastLogin(usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(context.Background(), usr, nil, nil)
}

// RequestPasswordReset creates a single-use reset ticket for the account
// matching email and mails its confirmation key to the user.
func (svc *service) RequestPasswordReset(email string) error {
	ctx := context.Background()
	usr, err := svc.GetByEmail(email)
	if err != nil {
		return err
	}

	reset := PasswordReset{
		UserID:    usr.ID,
		Key:       MakeResetKey(),
		CreatedAt: time.Now().UTC(),
	}
	if reset, err = svc.repo.CreatePasswordReset(ctx, reset); err != nil {
		return errors.Wrap(err, "creating password reset")
	}

	svc.sendPasswordResetMail(usr, reset)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User, reset PasswordReset) {
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "Password Reset",
			TemplateName: "password-reset",
			TemplateData: struct {
				User User
				Key  string
			}{usr, reset.Key},
		},
	)
}

// ResetPassword confirms a reset ticket: unknown or already-confirmed keys are
// rejected, a confirmed ticket cannot be reused.
func (svc *service) ResetPassword(rp ResetUserPassword) error {
	ctx := context.Background()

	reset, err := svc.repo.GetPasswordResetByKey(ctx, rp.Key)
	if err != nil {
		return err
	}
	if reset.Confirmed {
		return ErrResetNotFound
	}
	if svc.conf.PasswordResetTimeout > 0 && time.Now().UTC().Sub(reset.CreatedAt) > svc.conf.PasswordResetTimeout {
		return ErrResetExpired
	}

	usr, err := svc.GetByID(reset.UserID)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr, nil, nil); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return svc.repo.ConfirmPasswordReset(ctx, reset.ID)
}

func (svc *service) Delete(ids ...string) error {
	return svc.repo.DeleteUsersByID(context.Background(), ids...)
}
