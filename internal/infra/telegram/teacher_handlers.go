package telegram

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"assignment_tracker_bot/internal/app"
	"assignment_tracker_bot/internal/domain/campaign"
	"assignment_tracker_bot/internal/domain/course"
	"assignment_tracker_bot/internal/domain/student"
	"assignment_tracker_bot/internal/domain/submission"
	"assignment_tracker_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterTeacherHandlers wires the teacher-only commands and the inline
// button callbacks for flag verification and broadcast confirmation.
// Every handler checks the sender against the configured teacher ID.
func RegisterTeacherHandlers(
	ctx context.Context,
	b *telebot.Bot,
	cfg *config.AppConfig,
	campaignSvc *app.CampaignService,
	summarySvc *app.SummaryService,
	importSvc *app.ImportService,
	submissionRepo submission.Repository,
	courseRepo course.Repository,
	studentRepo student.Repository,
	baseLogger *logrus.Entry,
) {
	teacherLogger := baseLogger.WithField("handler_group", "teacher")

	isTeacher := func(c telebot.Context) bool {
		if c.Sender().ID == cfg.TeacherTelegramID {
			return true
		}
		_ = c.Send("This command is for the teacher.")
		return false
	}

	b.Handle("/atrisk", func(c telebot.Context) error {
		if !isTeacher(c) {
			return nil
		}
		logCtx := teacherLogger.WithField("command", "/atrisk")
		threshold := cfg.AtRiskThreshold
		if arg := strings.TrimSpace(c.Message().Payload); arg != "" {
			if v, err := strconv.Atoi(arg); err == nil && v > 0 {
				threshold = v
			}
		}
		if _, err := summarySvc.RebuildAllStale(ctx, 0); err != nil {
			logCtx.WithError(err).Error("Error rebuilding summaries for /atrisk")
			return c.Send("Could not refresh summaries, please try again.")
		}
		rows, err := summarySvc.ListAtRisk(ctx, threshold)
		if err != nil {
			logCtx.WithError(err).Error("Error listing at-risk students")
			return c.Send("Could not load the at-risk list, please try again.")
		}
		if len(rows) == 0 {
			return c.Send(fmt.Sprintf("No students with %d or more missing assignments.", threshold))
		}
		var msg strings.Builder
		fmt.Fprintf(&msg, "Students with %d+ missing assignments:\n\n", threshold)
		for _, r := range rows {
			reach := ""
			if !r.Reachable {
				reach = " (no chat linked)"
			}
			fmt.Fprintf(&msg, "%s: %d missing, avg %.2f%%%s\n", r.FullName, r.TotalMissing, r.AvgAllPct, reach)
		}
		return c.Send(msg.String())
	})

	b.Handle("/pending", func(c telebot.Context) error {
		if !isTeacher(c) {
			return nil
		}
		logCtx := teacherLogger.WithField("command", "/pending")
		flags, err := submissionRepo.ListPendingFlags(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Error listing pending flags")
			return c.Send("Could not load pending flags, please try again.")
		}
		if len(flags) == 0 {
			return c.Send("No disputes waiting for review.")
		}
		for _, f := range flags {
			var msg strings.Builder
			fmt.Fprintf(&msg, "%s disputes \"%s\" (%s), flagged %s.",
				f.StudentName, f.AssignmentTitle, f.CourseName, f.FlaggedAt.Format("Jan 2 15:04"))
			if f.FlagNote.Valid {
				fmt.Fprintf(&msg, "\nNote: %s", f.FlagNote.String)
			}
			if f.ProofFileID.Valid {
				fmt.Fprintf(&msg, "\nProof attached (%s)", f.ProofFileType.String)
				if f.ProofCaption.Valid {
					fmt.Fprintf(&msg, ": %s", f.ProofCaption.String)
				}
			}
			markup := &telebot.ReplyMarkup{
				InlineKeyboard: [][]telebot.InlineButton{{
					{Text: "Accept", Data: fmt.Sprintf("flag_ok_%d_%d", f.StudentID, f.AssignmentID)},
					{Text: "Reject", Data: fmt.Sprintf("flag_no_%d_%d", f.StudentID, f.AssignmentID)},
				}},
			}
			if err := c.Send(msg.String(), markup); err != nil {
				return err
			}
		}
		return nil
	})

	b.Handle("/student", func(c telebot.Context) error {
		if !isTeacher(c) {
			return nil
		}
		logCtx := teacherLogger.WithField("command", "/student")
		query := strings.TrimSpace(c.Message().Payload)
		if query == "" {
			return c.Send("Usage: /student <part of a name>")
		}
		matches, err := studentRepo.SearchByName(ctx, query)
		if err != nil {
			logCtx.WithError(err).Error("Error searching students")
			return c.Send("Could not search students, please try again.")
		}
		if len(matches) == 0 {
			return c.Send("No student matches that name.")
		}
		if len(matches) > 5 {
			var msg strings.Builder
			fmt.Fprintf(&msg, "%d students match, narrow it down:\n", len(matches))
			for i, st := range matches {
				if i == 15 {
					msg.WriteString("...\n")
					break
				}
				fmt.Fprintf(&msg, "  %s (%s)\n", st.FullName, st.LMSID)
			}
			return c.Send(msg.String())
		}
		var msg strings.Builder
		for _, st := range matches {
			fmt.Fprintf(&msg, "%s (%s)", st.FullName, st.LMSID)
			if !st.Reachable() {
				msg.WriteString(", no chat linked")
			}
			msg.WriteByte('\n')
			courses, err := courseRepo.ListEnrolledCourses(ctx, st.ID)
			if err != nil {
				logCtx.WithError(err).Error("Error listing enrolled courses for /student")
				return c.Send("Could not load the student card, please try again.")
			}
			for _, crs := range courses {
				s, err := summarySvc.GetFresh(ctx, st.ID, crs.ID)
				if err != nil {
					logCtx.WithError(err).Error("Error getting summary for /student")
					return c.Send("Could not load the student card, please try again.")
				}
				fmt.Fprintf(&msg, "  %s: %d/%d submitted, %d missing, avg %.2f%%\n",
					crs.Name, s.TotalSubmitted, s.TotalAssigned, s.TotalMissing, s.AvgAllPct)
			}
			msg.WriteByte('\n')
		}
		return c.Send(msg.String())
	})

	b.Handle("/stats", func(c telebot.Context) error {
		if !isTeacher(c) {
			return nil
		}
		logCtx := teacherLogger.WithField("command", "/stats")
		courses, err := courseRepo.ListCourses(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Error listing courses for /stats")
			return c.Send("Could not load the overview, please try again.")
		}
		var msg strings.Builder
		msg.WriteString("Courses:\n")
		for _, crs := range courses {
			assignments, err := courseRepo.ListActiveAssignments(ctx, crs.ID)
			if err != nil {
				logCtx.WithError(err).Error("Error listing assignments for /stats")
				return c.Send("Could not load the overview, please try again.")
			}
			fmt.Fprintf(&msg, "  %s: %d active assignments\n", crs.Name, len(assignments))
		}
		atRisk, err := summarySvc.ListAtRisk(ctx, cfg.AtRiskThreshold)
		if err != nil {
			logCtx.WithError(err).Error("Error listing at-risk for /stats")
			return c.Send("Could not load the overview, please try again.")
		}
		fmt.Fprintf(&msg, "\nAt risk (%d+ missing): %d students\n", cfg.AtRiskThreshold, len(atRisk))
		flags, err := submissionRepo.ListPendingFlags(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Error listing flags for /stats")
			return c.Send("Could not load the overview, please try again.")
		}
		fmt.Fprintf(&msg, "Pending disputes: %d", len(flags))
		return c.Send(msg.String())
	})

	// parseCampaignArgs reads "[course_id] [threshold]" after the template key.
	parseCampaignArgs := func(args []string) (courseID sql.NullInt64, threshold int) {
		threshold = cfg.AtRiskThreshold
		if len(args) > 0 {
			if v, err := strconv.ParseInt(args[0], 10, 64); err == nil && v > 0 {
				courseID = sql.NullInt64{Int64: v, Valid: true}
			}
		}
		if len(args) > 1 {
			if v, err := strconv.Atoi(args[1]); err == nil && v > 0 {
				threshold = v
			}
		}
		return courseID, threshold
	}

	b.Handle("/broadcast", func(c telebot.Context) error {
		if !isTeacher(c) {
			return nil
		}
		logCtx := teacherLogger.WithField("command", "/broadcast")
		args := strings.Fields(c.Message().Payload)
		if len(args) == 0 {
			return c.Send("Usage: /broadcast <gentle|firm|exam> [course_id] [threshold]")
		}
		templateKey := args[0]
		if _, ok := campaign.Templates[templateKey]; !ok {
			return c.Send("Unknown template. Available: gentle, firm, exam.")
		}
		courseID, threshold := parseCampaignArgs(args[1:])

		scope := int64(0)
		if courseID.Valid {
			scope = courseID.Int64
		}
		targets, err := campaignSvc.PreviewTargets(ctx, scope, threshold)
		if err != nil {
			logCtx.WithError(err).Error("Error previewing broadcast targets")
			return c.Send("Could not compute the target list, please try again.")
		}
		if len(targets) == 0 {
			return c.Send("No reachable students match that threshold right now.")
		}

		var msg strings.Builder
		fmt.Fprintf(&msg, "This would reach %d student(s):\n\n", len(targets))
		for i, t := range targets {
			if i == 10 {
				fmt.Fprintf(&msg, "... and %d more\n", len(targets)-10)
				break
			}
			fmt.Fprintf(&msg, "%s (%d missing)\n", t.FullName, t.MissingCount)
		}
		sample := campaign.Render(campaign.Templates[templateKey], campaign.RenderData{
			FirstName:     targets[0].FirstName,
			FullName:      targets[0].FullName,
			MissingCount:  targets[0].MissingCount,
			MissingTitles: targets[0].MissingTitles,
		})
		fmt.Fprintf(&msg, "\nFirst message preview:\n%s", sample)

		markup := &telebot.ReplyMarkup{
			InlineKeyboard: [][]telebot.InlineButton{{
				{Text: "Send now", Data: fmt.Sprintf("bcast_%s_%d_%d", templateKey, scope, threshold)},
			}},
		}
		return c.Send(msg.String(), markup)
	})

	b.Handle("/campaign", func(c telebot.Context) error {
		if !isTeacher(c) {
			return nil
		}
		logCtx := teacherLogger.WithField("command", "/campaign")
		args := strings.Fields(c.Message().Payload)
		if len(args) < 2 {
			return c.Send("Usage: /campaign <gentle|firm|exam> <delay, e.g. 30m or 24h> [course_id] [threshold]")
		}
		templateKey := args[0]
		if _, ok := campaign.Templates[templateKey]; !ok {
			return c.Send("Unknown template. Available: gentle, firm, exam.")
		}
		delay, err := time.ParseDuration(args[1])
		if err != nil || delay < 0 {
			return c.Send("I could not read that delay. Use Go duration syntax, e.g. 30m, 2h, 24h.")
		}
		courseID, threshold := parseCampaignArgs(args[2:])

		j := &campaign.Job{
			CreatedBy:        strconv.FormatInt(c.Sender().ID, 10),
			TemplateKey:      templateKey,
			CourseID:         courseID,
			MissingThreshold: threshold,
			RunAt:            time.Now().Add(delay),
		}
		ran, err := campaignSvc.Create(ctx, j)
		if err != nil {
			logCtx.WithError(err).Error("Error creating campaign")
			return c.Send("Could not create the campaign, please try again.")
		}
		if ran {
			done, err := campaignSvc.GetJob(ctx, j.ID)
			if err == nil {
				return c.Send(fmt.Sprintf("Campaign %d ran immediately: %d/%d sent.", done.ID, done.SentCount, done.TargetCount))
			}
			return c.Send(fmt.Sprintf("Campaign %d ran immediately.", j.ID))
		}
		return c.Send(fmt.Sprintf("Campaign %d scheduled for %s.", j.ID, j.RunAt.Format("Jan 2 15:04")))
	})

	b.Handle("/custom", func(c telebot.Context) error {
		if !isTeacher(c) {
			return nil
		}
		logCtx := teacherLogger.WithField("command", "/custom")
		payload := strings.TrimSpace(c.Message().Payload)
		fields := strings.Fields(payload)
		if len(fields) < 2 {
			return c.Send("Usage: /custom <delay, e.g. 0s or 2h> <message text>\nPlaceholders: {first_name}, {full_name}, {missing_count}, {missing_list}.")
		}
		delay, err := time.ParseDuration(fields[0])
		if err != nil || delay < 0 {
			return c.Send("I could not read that delay. Use Go duration syntax, e.g. 0s, 30m, 24h.")
		}
		text := strings.TrimSpace(strings.TrimPrefix(payload, fields[0]))

		j := &campaign.Job{
			CreatedBy:        strconv.FormatInt(c.Sender().ID, 10),
			TemplateKey:      campaign.DefaultTemplateKey,
			TemplateText:     sql.NullString{String: text, Valid: true},
			MissingThreshold: cfg.AtRiskThreshold,
			RunAt:            time.Now().Add(delay),
		}
		ran, err := campaignSvc.Create(ctx, j)
		if err != nil {
			logCtx.WithError(err).Error("Error creating custom campaign")
			return c.Send("Could not create the campaign, please try again.")
		}
		if ran {
			done, err := campaignSvc.GetJob(ctx, j.ID)
			if err == nil {
				return c.Send(fmt.Sprintf("Campaign %d ran immediately: %d/%d sent.", done.ID, done.SentCount, done.TargetCount))
			}
			return c.Send(fmt.Sprintf("Campaign %d ran immediately.", j.ID))
		}
		return c.Send(fmt.Sprintf("Campaign %d scheduled for %s.", j.ID, j.RunAt.Format("Jan 2 15:04")))
	})

	b.Handle("/campaigns", func(c telebot.Context) error {
		if !isTeacher(c) {
			return nil
		}
		logCtx := teacherLogger.WithField("command", "/campaigns")
		jobs, err := campaignSvc.ListRecentJobs(ctx, 10)
		if err != nil {
			logCtx.WithError(err).Error("Error listing campaigns")
			return c.Send("Could not load campaigns, please try again.")
		}
		if len(jobs) == 0 {
			return c.Send("No campaigns yet. Create one with /broadcast or /campaign.")
		}
		var msg strings.Builder
		msg.WriteString("Recent campaigns:\n\n")
		for _, j := range jobs {
			fmt.Fprintf(&msg, "#%d %s [%s]", j.ID, j.TemplateKey, j.Status)
			if j.Status.Terminal() {
				fmt.Fprintf(&msg, " %d/%d sent", j.SentCount, j.TargetCount)
			} else {
				fmt.Fprintf(&msg, " runs %s", j.RunAt.Format("Jan 2 15:04"))
			}
			if j.Error.Valid {
				fmt.Fprintf(&msg, " (error: %s)", j.Error.String)
			}
			msg.WriteByte('\n')
		}
		return c.Send(msg.String())
	})

	b.Handle("/rundue", func(c telebot.Context) error {
		if !isTeacher(c) {
			return nil
		}
		logCtx := teacherLogger.WithField("command", "/rundue")
		ran, err := campaignSvc.RunDue(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Error running due campaigns")
			return c.Send("Could not run due campaigns, please try again.")
		}
		return c.Send(fmt.Sprintf("Ran %d due campaign(s).", ran))
	})

	b.Handle("/rebuild", func(c telebot.Context) error {
		if !isTeacher(c) {
			return nil
		}
		logCtx := teacherLogger.WithField("command", "/rebuild")
		rebuilt, err := summarySvc.RebuildAllStale(ctx, 0)
		if err != nil {
			logCtx.WithError(err).Error("Error rebuilding summaries")
			return c.Send(fmt.Sprintf("Rebuild stopped after %d row(s), please try again.", rebuilt))
		}
		return c.Send(fmt.Sprintf("Rebuilt %d stale summary row(s).", rebuilt))
	})

	b.Handle("/imports", func(c telebot.Context) error {
		if !isTeacher(c) {
			return nil
		}
		logCtx := teacherLogger.WithField("command", "/imports")
		entries, err := importSvc.ListRecentBatches(ctx, 10)
		if err != nil {
			logCtx.WithError(err).Error("Error listing import batches")
			return c.Send("Could not load import history, please try again.")
		}
		if len(entries) == 0 {
			return c.Send("No imports recorded yet.")
		}
		var msg strings.Builder
		msg.WriteString("Recent imports:\n\n")
		for _, e := range entries {
			fmt.Fprintf(&msg, "%s from %s: +%d new, %d updated\n",
				e.CreatedAt.Format("Jan 2 15:04"), e.Source, e.RowsAdded, e.RowsUpdated)
		}
		return c.Send(msg.String())
	})

	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		if c.Sender().ID != cfg.TeacherTelegramID {
			return c.Respond(&telebot.CallbackResponse{Text: "Not for you."})
		}
		data := strings.TrimSpace(c.Callback().Data)
		logCtx := teacherLogger.WithField("handler", "callback").WithField("data", data)

		if strings.HasPrefix(data, "flag_ok_") || strings.HasPrefix(data, "flag_no_") {
			parts := strings.Split(data, "_") // flag_ok_<studentID>_<assignmentID>
			if len(parts) != 4 {
				return c.Respond(&telebot.CallbackResponse{Text: "Malformed action."})
			}
			studentID, err1 := strconv.ParseInt(parts[2], 10, 64)
			assignmentID, err2 := strconv.ParseInt(parts[3], 10, 64)
			if err1 != nil || err2 != nil {
				return c.Respond(&telebot.CallbackResponse{Text: "Malformed action."})
			}
			approved := parts[1] == "ok"
			verifier := strconv.FormatInt(c.Sender().ID, 10)
			if err := submissionRepo.VerifyFlag(ctx, studentID, assignmentID, approved, verifier); err != nil {
				logCtx.WithError(err).Error("Error verifying flag from callback")
				return c.Respond(&telebot.CallbackResponse{Text: "Could not apply, it may already be resolved."})
			}
			verdict := "accepted, marked submitted"
			if !approved {
				verdict = "rejected, stays missing"
			}
			return c.Respond(&telebot.CallbackResponse{Text: "Dispute " + verdict + "."})
		}

		if strings.HasPrefix(data, "bcast_") {
			parts := strings.Split(data, "_") // bcast_<template>_<courseID>_<threshold>
			if len(parts) != 4 {
				return c.Respond(&telebot.CallbackResponse{Text: "Malformed action."})
			}
			scope, err1 := strconv.ParseInt(parts[2], 10, 64)
			threshold, err2 := strconv.Atoi(parts[3])
			if err1 != nil || err2 != nil {
				return c.Respond(&telebot.CallbackResponse{Text: "Malformed action."})
			}
			j := &campaign.Job{
				CreatedBy:        strconv.FormatInt(c.Sender().ID, 10),
				TemplateKey:      parts[1],
				MissingThreshold: threshold,
			}
			if scope != 0 {
				j.CourseID = sql.NullInt64{Int64: scope, Valid: true}
			}
			if _, err := campaignSvc.Create(ctx, j); err != nil {
				logCtx.WithError(err).Error("Error running confirmed broadcast")
				return c.Respond(&telebot.CallbackResponse{Text: "Broadcast failed to start."})
			}
			done, err := campaignSvc.GetJob(ctx, j.ID)
			if err == nil {
				_ = c.Send(fmt.Sprintf("Broadcast %d finished: %d/%d sent.", done.ID, done.SentCount, done.TargetCount))
			}
			return c.Respond(&telebot.CallbackResponse{Text: "Broadcast sent."})
		}

		return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
	})
}
