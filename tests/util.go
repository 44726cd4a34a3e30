package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/gosimple/slug"

	"github.com/trezcool/simplemooc/core/course"
	"github.com/trezcool/simplemooc/core/forum"
	"github.com/trezcool/simplemooc/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	isStaff bool,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		IsStaff:   isStaff,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	name, description string,
	createdAt ...time.Time,
) course.Course {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	crs := course.Course{
		Name:        name,
		Slug:        slug.Make(name),
		Description: description,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	}
	crs, err := repo.CreateCourse(context.Background(), crs)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateEnrollment(
	t *testing.T,
	repo course.Repository,
	userID, courseID, status string,
) course.Enrollment {
	tstamp := time.Now().UTC()
	enr := course.Enrollment{
		UserID:    userID,
		CourseID:  courseID,
		Status:    status,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	enr, err := repo.CreateEnrollment(context.Background(), enr)
	if err != nil {
		t.Fatalf("CreateEnrollment() failed: %v", err)
	}
	return enr
}

func CreateThread(
	t *testing.T,
	repo forum.Repository,
	userID, title, body string,
	tags []string,
	createdAt ...time.Time,
) forum.Thread {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	thr := forum.Thread{
		UserID:    userID,
		Title:     title,
		Slug:      slug.Make(title),
		Body:      body,
		Tags:      tags,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	thr, err := repo.CreateThread(context.Background(), thr)
	if err != nil {
		t.Fatalf("CreateThread() failed: %v", err)
	}
	return thr
}
