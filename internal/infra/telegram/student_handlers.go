package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"assignment_tracker_bot/internal/app"
	"assignment_tracker_bot/internal/domain/course"
	"assignment_tracker_bot/internal/domain/student"
	"assignment_tracker_bot/internal/domain/submission"
	"assignment_tracker_bot/internal/infra/config"
	idb "assignment_tracker_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterStudentHandlers wires the student-facing commands. Every
// handler resolves the sender to a linked student first; unlinked chats
// get registration instructions instead of data.
func RegisterStudentHandlers(
	ctx context.Context,
	b *telebot.Bot,
	cfg *config.AppConfig,
	regSvc *app.RegistrationService,
	summarySvc *app.SummaryService,
	submissionRepo submission.Repository,
	courseRepo course.Repository,
	baseLogger *logrus.Entry,
) {
	studentLogger := baseLogger.WithField("handler_group", "student")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := studentLogger.WithField("command", "/start").WithField("sender_id", senderID)

		if senderID == cfg.TeacherTelegramID {
			return c.Send("Hello! Teacher commands: /atrisk, /pending, /student, /stats, /broadcast, /campaign, /custom, /campaigns, /rundue, /rebuild, /imports. See /help.")
		}

		// Deep-link registration: "/start <LMS ID>" or t.me/<bot>?start=<LMS ID>.
		payload := strings.TrimSpace(c.Message().Payload)
		if payload != "" {
			st, err := regSvc.Register(ctx, senderID, c.Sender().Username, payload)
			switch {
			case err == nil:
				logCtx.WithField("student_id", st.ID).Info("Student registered via /start")
				return c.Send(fmt.Sprintf("Welcome, %s! Your account is linked. Try /missing, /grades or /summary.", st.FirstName()))
			case err == app.ErrAlreadyRegistered:
				return c.Send(fmt.Sprintf("This chat is already linked to %s. Use /unlink first if that is wrong.", st.FullName))
			case err == app.ErrUnknownLMSID:
				return c.Send("I don't recognize that ID, or it is already claimed. Double-check the ID your teacher gave you.")
			default:
				logCtx.WithError(err).Error("Registration failed")
				return c.Send("Something went wrong, please try again later.")
			}
		}

		if st, err := regSvc.Lookup(ctx, senderID); err == nil {
			return c.Send(fmt.Sprintf("Hi %s! Commands: /missing, /grades, /summary, /flag, /unlink.", st.FirstName()))
		} else if err != idb.ErrStudentNotFound {
			logCtx.WithError(err).Error("Error checking registration for /start")
			return c.Send("Something went wrong, please try again later.")
		}
		return c.Send("Hi! To link your account, send /start followed by the ID your teacher gave you, e.g. /start stu-42.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		if c.Sender().ID == cfg.TeacherTelegramID {
			var help strings.Builder
			help.WriteString("Teacher commands:\n\n")
			help.WriteString("/atrisk [threshold] - students at or over the missing-work threshold\n")
			help.WriteString("/pending - student flags awaiting verification\n")
			help.WriteString("/student <name> - look up a student's standing\n")
			help.WriteString("/stats - course and import overview\n")
			help.WriteString("/broadcast <template> [course_id] [threshold] - preview and send a reminder now\n")
			help.WriteString("/campaign <template> <delay, e.g. 30m> [course_id] [threshold] - schedule a reminder\n")
			help.WriteString("/custom <delay> <text> - campaign with your own message text\n")
			help.WriteString("/campaigns - recent campaign jobs\n")
			help.WriteString("/rundue - run due campaigns immediately\n")
			help.WriteString("/rebuild - rebuild all stale summaries\n")
			help.WriteString("/imports - recent import batches")
			return c.Send(help.String())
		}
		return c.Send("Commands:\n\n/start <ID> - link your account\n/missing - assignments you still owe\n/grades - your recent grades\n/summary - your per-course standing\n/flag <number> [note] - dispute a missing mark\n/unlink - detach this chat")
	})

	requireStudent := func(c telebot.Context, logCtx *logrus.Entry) (*student.Student, bool) {
		st, err := regSvc.Lookup(ctx, c.Sender().ID)
		if err == idb.ErrStudentNotFound {
			_ = c.Send("This chat is not linked yet. Send /start followed by your ID first.")
			return nil, false
		}
		if err != nil {
			logCtx.WithError(err).Error("Error resolving sender to student")
			_ = c.Send("Something went wrong, please try again later.")
			return nil, false
		}
		return st, true
	}

	b.Handle("/missing", func(c telebot.Context) error {
		logCtx := studentLogger.WithField("command", "/missing").WithField("sender_id", c.Sender().ID)
		st, ok := requireStudent(c, logCtx)
		if !ok {
			return nil
		}
		items, err := submissionRepo.ListMissing(ctx, st.ID, 0)
		if err != nil {
			logCtx.WithError(err).Error("Error listing missing work")
			return c.Send("Something went wrong, please try again later.")
		}
		if len(items) == 0 {
			return c.Send("Nothing missing. Nice work!")
		}
		var msg strings.Builder
		fmt.Fprintf(&msg, "You have %d missing assignment(s):\n\n", len(items))
		for _, it := range items {
			fmt.Fprintf(&msg, "#%d %s", it.AssignmentID, it.Title)
			if it.DueDate.Valid {
				fmt.Fprintf(&msg, " (due %s)", it.DueDate.Time.Format("Jan 2"))
			}
			msg.WriteByte('\n')
		}
		msg.WriteString("\nThink one of these is wrong? Dispute it with /flag <number>.")
		return c.Send(msg.String())
	})

	b.Handle("/grades", func(c telebot.Context) error {
		logCtx := studentLogger.WithField("command", "/grades").WithField("sender_id", c.Sender().ID)
		st, ok := requireStudent(c, logCtx)
		if !ok {
			return nil
		}
		items, err := submissionRepo.ListGrades(ctx, st.ID, 0, 15)
		if err != nil {
			logCtx.WithError(err).Error("Error listing grades")
			return c.Send("Something went wrong, please try again later.")
		}
		if len(items) == 0 {
			return c.Send("No graded work recorded yet.")
		}
		var msg strings.Builder
		msg.WriteString("Your recent work:\n\n")
		for _, it := range items {
			fmt.Fprintf(&msg, "%s: %s", it.Title, it.Status)
			if it.ScoreRaw.Valid {
				fmt.Fprintf(&msg, " (%s)", it.ScoreRaw.String)
			} else if it.ScorePct.Valid {
				fmt.Fprintf(&msg, " (%.0f%%)", it.ScorePct.Float64)
			}
			msg.WriteByte('\n')
		}
		return c.Send(msg.String())
	})

	b.Handle("/summary", func(c telebot.Context) error {
		logCtx := studentLogger.WithField("command", "/summary").WithField("sender_id", c.Sender().ID)
		st, ok := requireStudent(c, logCtx)
		if !ok {
			return nil
		}
		courses, err := courseRepo.ListEnrolledCourses(ctx, st.ID)
		if err != nil {
			logCtx.WithError(err).Error("Error listing enrolled courses")
			return c.Send("Something went wrong, please try again later.")
		}
		if len(courses) == 0 {
			return c.Send("You are not enrolled in any course yet.")
		}
		var msg strings.Builder
		fmt.Fprintf(&msg, "Standing for %s:\n", st.FullName)
		for _, crs := range courses {
			s, err := summarySvc.GetFresh(ctx, st.ID, crs.ID)
			if err != nil {
				logCtx.WithError(err).WithField("course_id", crs.ID).Error("Error getting summary")
				return c.Send("Something went wrong, please try again later.")
			}
			fmt.Fprintf(&msg, "\n%s\n", crs.Name)
			fmt.Fprintf(&msg, "  Submitted %d of %d, %d missing, %d late\n",
				s.TotalSubmitted, s.TotalAssigned, s.TotalMissing, s.TotalLate)
			if s.AvgSubmittedPct.Valid {
				fmt.Fprintf(&msg, "  Average on submitted work: %.2f%%\n", s.AvgSubmittedPct.Float64)
			}
			fmt.Fprintf(&msg, "  Overall average: %.2f%%\n", s.AvgAllPct)
			fmt.Fprintf(&msg, "  Points: %.4g of %.4g\n", s.PointsEarned, s.PointsPossible)
		}
		return c.Send(msg.String())
	})

	b.Handle("/flag", func(c telebot.Context) error {
		logCtx := studentLogger.WithField("command", "/flag").WithField("sender_id", c.Sender().ID)
		st, ok := requireStudent(c, logCtx)
		if !ok {
			return nil
		}
		args := strings.Fields(c.Message().Payload)
		if len(args) == 0 {
			return c.Send("Usage: /flag <assignment number> [note]. The number is shown by /missing.")
		}
		assignmentID, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
		if err != nil {
			return c.Send("That doesn't look like an assignment number. The number is shown by /missing.")
		}
		note := strings.TrimSpace(strings.TrimPrefix(c.Message().Payload, args[0]))

		err = submissionRepo.Flag(ctx, st.ID, assignmentID, note)
		switch {
		case err == nil:
			logCtx.WithField("assignment_id", assignmentID).Info("Student flagged a missing mark")
			return c.Send("Got it, your teacher will review this. You can attach proof: send a photo or file with the assignment number as its caption.")
		case err == idb.ErrNotFlaggable:
			return c.Send("Only assignments currently marked missing can be disputed.")
		case err == idb.ErrUnknownAssignment:
			return c.Send("I don't know that assignment number. Check /missing for the right one.")
		default:
			logCtx.WithError(err).Error("Error flagging submission")
			return c.Send("Something went wrong, please try again later.")
		}
	})

	attachProof := func(c telebot.Context, fileID, fileType string) error {
		logCtx := studentLogger.WithField("handler", "proof_upload").WithField("sender_id", c.Sender().ID)
		st, ok := requireStudent(c, logCtx)
		if !ok {
			return nil
		}
		caption := strings.TrimSpace(c.Message().Caption)
		fields := strings.Fields(caption)
		if len(fields) == 0 {
			return c.Send("To attach proof, put the assignment number in the caption, e.g. \"17 submitted on Friday\".")
		}
		assignmentID, err := strconv.ParseInt(strings.TrimPrefix(fields[0], "#"), 10, 64)
		if err != nil {
			return c.Send("The caption must start with the assignment number, e.g. \"17 submitted on Friday\".")
		}
		note := strings.TrimSpace(strings.TrimPrefix(caption, fields[0]))

		err = submissionRepo.AttachProof(ctx, st.ID, assignmentID, fileID, fileType, note)
		switch {
		case err == nil:
			logCtx.WithField("assignment_id", assignmentID).Info("Proof attached to flagged submission")
			return c.Send("Proof attached. Your teacher will see it with your dispute.")
		case err == idb.ErrNoPendingFlag:
			return c.Send("There is no open dispute on that assignment. Flag it first with /flag.")
		default:
			logCtx.WithError(err).Error("Error attaching proof")
			return c.Send("Something went wrong, please try again later.")
		}
	}

	b.Handle(telebot.OnDocument, func(c telebot.Context) error {
		return attachProof(c, c.Message().Document.FileID, "document")
	})

	b.Handle(telebot.OnPhoto, func(c telebot.Context) error {
		return attachProof(c, c.Message().Photo.FileID, "photo")
	})

	b.Handle("/unlink", func(c telebot.Context) error {
		logCtx := studentLogger.WithField("command", "/unlink").WithField("sender_id", c.Sender().ID)
		err := regSvc.Unregister(ctx, c.Sender().ID)
		if err == idb.ErrStudentNotFound {
			return c.Send("This chat is not linked to any student.")
		}
		if err != nil {
			logCtx.WithError(err).Error("Error unlinking chat")
			return c.Send("Something went wrong, please try again later.")
		}
		return c.Send("Done, this chat is no longer linked. Use /start <ID> to link again.")
	})
}
