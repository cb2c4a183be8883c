package workflow_test

import (
	"errors"
	"testing"

	"github.com/okian/rankready/internal/domain/model"
	"github.com/okian/rankready/internal/domain/workflow"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTransition(t *testing.T) {
	Convey("Given the review workflow", t, func() {
		Convey("When a draft is submitted and approved", func() {
			s, err := workflow.Transition(model.StatusDraft, workflow.ActionSubmit)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, model.StatusSubmitted)

			s, err = workflow.Transition(s, workflow.ActionApprove)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, model.StatusApproved)
		})

		Convey("When a rejected report is resubmitted", func() {
			s, err := workflow.Transition(model.StatusSubmitted, workflow.ActionReject)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, model.StatusRejected)

			s, err = workflow.Transition(s, workflow.ActionSubmit)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, model.StatusSubmitted)
		})

		Convey("When an invalid action is applied", func() {
			cases := []struct {
				from   model.SubmissionStatus
				action workflow.Action
			}{
				{model.StatusDraft, workflow.ActionApprove},
				{model.StatusApproved, workflow.ActionSubmit},
				{model.StatusApproved, workflow.ActionReject},
				{model.StatusRejected, workflow.ActionApprove},
				{model.StatusSubmitted, workflow.ActionSubmit},
			}
			for _, c := range cases {
				s, err := workflow.Transition(c.from, c.action)
				So(errors.Is(err, workflow.ErrInvalidTransition), ShouldBeTrue)
				So(s, ShouldEqual, c.from)
			}
		})

		Convey("Then allowed actions follow the table", func() {
			So(workflow.Allowed(model.StatusSubmitted), ShouldResemble, []workflow.Action{workflow.ActionApprove, workflow.ActionReject})
			So(workflow.Allowed(model.StatusApproved), ShouldBeEmpty)
		})
	})
}

func TestParseAction(t *testing.T) {
	Convey("Given action names", t, func() {
		a, err := workflow.ParseAction("approve")
		So(err, ShouldBeNil)
		So(a, ShouldEqual, workflow.ActionApprove)

		_, err = workflow.ParseAction("publish")
		So(errors.Is(err, workflow.ErrUnknownAction), ShouldBeTrue)
	})
}
