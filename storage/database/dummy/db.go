package dummydb

import (
	"sync"

	"github.com/trezcool/simplemooc/core/course"
	"github.com/trezcool/simplemooc/core/forum"
	"github.com/trezcool/simplemooc/core/user"
)

type (
	DB struct {
		user         *userTable
		reset        *resetTable
		course       *courseTable
		lesson       *lessonTable
		material     *materialTable
		enrollment   *enrollmentTable
		announcement *announcementTable
		comment      *commentTable
		thread       *threadTable
		reply        *replyTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}
	resetTable struct {
		sync.RWMutex
		table map[string]*user.PasswordReset
	}
	courseTable struct {
		sync.RWMutex
		table map[string]*course.Course
	}
	lessonTable struct {
		sync.RWMutex
		table map[string]*course.Lesson
	}
	materialTable struct {
		sync.RWMutex
		table map[string]*course.Material
	}
	enrollmentTable struct {
		sync.RWMutex
		table map[string]*course.Enrollment
	}
	announcementTable struct {
		sync.RWMutex
		table map[string]*course.Announcement
	}
	commentTable struct {
		sync.RWMutex
		table map[string]*course.Comment
	}
	threadTable struct {
		sync.RWMutex
		table map[string]*forum.Thread
	}
	replyTable struct {
		sync.RWMutex
		table map[string]*forum.Reply
	}
)

// Reset empties all tables; tests use it in place of TRUNCATE.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.Unlock()
	db.reset.Lock()
	db.reset.table = make(map[string]*user.PasswordReset)
	db.reset.Unlock()
	db.course.Lock()
	db.course.table = make(map[string]*course.Course)
	db.course.Unlock()
	db.lesson.Lock()
	db.lesson.table = make(map[string]*course.Lesson)
	db.lesson.Unlock()
	db.material.Lock()
	db.material.table = make(map[string]*course.Material)
	db.material.Unlock()
	db.enrollment.Lock()
	db.enrollment.table = make(map[string]*course.Enrollment)
	db.enrollment.Unlock()
	db.announcement.Lock()
	db.announcement.table = make(map[string]*course.Announcement)
	db.announcement.Unlock()
	db.comment.Lock()
	db.comment.table = make(map[string]*course.Comment)
	db.comment.Unlock()
	db.thread.Lock()
	db.thread.table = make(map[string]*forum.Thread)
	db.thread.Unlock()
	db.reply.Lock()
	db.reply.table = make(map[string]*forum.Reply)
	db.reply.Unlock()
}

func Open() (*DB, error) {
	db := &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		reset:        &resetTable{table: make(map[string]*user.PasswordReset)},
		course:       &courseTable{table: make(map[string]*course.Course)},
		lesson:       &lessonTable{table: make(map[string]*course.Lesson)},
		material:     &materialTable{table: make(map[string]*course.Material)},
		enrollment:   &enrollmentTable{table: make(map[string]*course.Enrollment)},
		announcement: &announcementTable{table: make(map[string]*course.Announcement)},
		comment:      &commentTable{table: make(map[string]*course.Comment)},
		thread:       &threadTable{table: make(map[string]*forum.Thread)},
		reply:        &replyTable{table: make(map[string]*forum.Reply)},
	}
	return db, nil
}
