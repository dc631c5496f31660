package interview

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"careercoach/internal/models"
)

const interviewColumns = `id, session_token, user_id, industry, job_role, difficulty, question_count,
	time_per_question, categories, questions, job_description, skills, status, created_at, updated_at,
	completed_at, duration, overall_score, confidence_score, clarity_score, content_score,
	strengths, improvements, feedback`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterview(row rowScanner) (*models.Session, error) {
	var (
		sess           models.Session
		categories     string
		questions      string
		jobDescription sql.NullString
		skills         sql.NullString
		status         string
		completedAt    sql.NullTime
		duration       sql.NullInt64
		overall        sql.NullFloat64
		confidence     sql.NullFloat64
		clarity        sql.NullFloat64
		content        sql.NullFloat64
		strengths      sql.NullString
		improvements   sql.NullString
		feedback       sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.Token, &sess.UserID, &sess.Settings.Industry, &sess.Settings.Role,
		&sess.Settings.Difficulty, &sess.Settings.QuestionCount, &sess.Settings.TimePerQuestion,
		&categories, &questions, &jobDescription, &skills, &status, &sess.CreatedAt, &sess.UpdatedAt,
		&completedAt, &duration, &overall, &confidence, &clarity, &content,
		&strengths, &improvements, &feedback)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(categories), &sess.Settings.Categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	if err := json.Unmarshal([]byte(questions), &sess.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	sess.Settings.JobDescription = jobDescription.String
	if skills.Valid && skills.String != "" {
		if err := json.Unmarshal([]byte(skills.String), &sess.Settings.Skills); err != nil {
			return nil, fmt.Errorf("decode skills: %w", err)
		}
	}
	sess.Status = models.Status(status)
	sess.Responses = []models.Response{}

	if completedAt.Valid {
		summary := &models.Summary{
			CompletedAt:     completedAt.Time,
			Duration:        int(duration.Int64),
			OverallScore:    nullFloat(overall),
			ConfidenceScore: nullFloat(confidence),
			ClarityScore:    nullFloat(clarity),
			ContentScore:    nullFloat(content),
			Strengths:       []string{},
			Improvements:    []string{},
		}
		if strengths.Valid && strengths.String != "" {
			if err := json.Unmarshal([]byte(strengths.String), &summary.Strengths); err != nil {
				return nil, fmt.Errorf("decode strengths: %w", err)
			}
		}
		if improvements.Valid && improvements.String != "" {
			if err := json.Unmarshal([]byte(improvements.String), &summary.Improvements); err != nil {
				return nil, fmt.Errorf("decode improvements: %w", err)
			}
		}
		if feedback.Valid && feedback.String != "" {
			summary.Feedback = json.RawMessage(feedback.String)
		}
		sess.Summary = summary
	}
	return &sess, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func (s *Service) userExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`), userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("verify user: %w", err)
	}
	return exists, nil
}

func (s *Service) interviewExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM video_interviews WHERE id = ?)`), id).Scan(&exists)
	return exists, err
}

func (s *Service) insertInterview(ctx context.Context, sess *models.Session) error {
	categories, err := json.Marshal(sess.Settings.Categories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	questions, err := json.Marshal(sess.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	var skills any
	if len(sess.Settings.Skills) > 0 {
		data, err := json.Marshal(sess.Settings.Skills)
		if err != nil {
			return fmt.Errorf("encode skills: %w", err)
		}
		skills = string(data)
	}
	id, err := s.db.InsertID(ctx,
		`INSERT INTO video_interviews (session_token, user_id, industry, job_role, difficulty, question_count,
			time_per_question, categories, questions, job_description, skills, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.Token, sess.UserID, sess.Settings.Industry, sess.Settings.Role, string(sess.Settings.Difficulty),
		sess.Settings.QuestionCount, sess.Settings.TimePerQuestion, string(categories), string(questions),
		sess.Settings.JobDescription, skills, string(sess.Status), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}
	sess.ID = id
	return nil
}

// loadOwned fetches a session with its responses. Missing and foreign
// sessions both yield ErrNotFound.
func (s *Service) loadOwned(ctx context.Context, userID int64, token string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+interviewColumns+` FROM video_interviews WHERE session_token = ? AND user_id = ?`),
		token, userID)
	sess, err := scanInterview(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load interview: %w", err)
	}
	responses, err := s.loadResponses(ctx,
		`SELECT interview_id, question_id, question, category, media_url, transcript, duration, analysis, recorded_at
		 FROM video_interview_responses WHERE interview_id = ? ORDER BY id`, sess.ID)
	if err != nil {
		return nil, err
	}
	if list := responses[sess.ID]; list != nil {
		sess.Responses = list
	}
	return sess, nil
}

func (s *Service) listOwned(ctx context.Context, userID int64) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT `+interviewColumns+` FROM video_interviews WHERE user_id = ? ORDER BY created_at DESC, id DESC`),
		userID)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	sessions := []*models.Session{}
	for rows.Next() {
		sess, err := scanInterview(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return sessions, nil
	}

	responses, err := s.loadResponses(ctx,
		`SELECT r.interview_id, r.question_id, r.question, r.category, r.media_url, r.transcript, r.duration, r.analysis, r.recorded_at
		 FROM video_interview_responses r JOIN video_interviews v ON v.id = r.interview_id
		 WHERE v.user_id = ? ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if list := responses[sess.ID]; list != nil {
			sess.Responses = list
		}
	}
	return sessions, nil
}

func (s *Service) loadResponses(ctx context.Context, query string, arg any) (map[int64][]models.Response, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), arg)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]models.Response)
	for rows.Next() {
		var (
			interviewID int64
			resp        models.Response
			analysis    sql.NullString
		)
		if err := rows.Scan(&interviewID, &resp.QuestionID, &resp.Question, &resp.Category, &resp.MediaURL,
			&resp.Transcript, &resp.Duration, &analysis, &resp.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		if analysis.Valid && analysis.String != "" {
			var a models.Analysis
			if err := json.Unmarshal([]byte(analysis.String), &a); err != nil {
				return nil, fmt.Errorf("decode analysis: %w", err)
			}
			resp.Analysis = &a
		}
		out[interviewID] = append(out[interviewID], resp)
	}
	return out, rows.Err()
}

// appendResponse stores resp for an in-progress session. The session row is
// touched first so a concurrent completion is serialised against it.
func (s *Service) appendResponse(ctx context.Context, interviewID int64, resp *models.Response) error {
	var analysis any
	if resp.Analysis != nil {
		data, err := json.Marshal(resp.Analysis)
		if err != nil {
			return fmt.Errorf("encode analysis: %w", err)
		}
		analysis = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		s.db.Rebind(`UPDATE video_interviews SET updated_at = ? WHERE id = ? AND status = ?`),
		resp.RecordedAt, interviewID, string(models.StatusInProgress))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("touch interview: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return ErrAlreadyCompleted
	}
	_, err = tx.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO video_interview_responses
			(interview_id, question_id, question, category, media_url, transcript, duration, analysis, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		interviewID, resp.QuestionID, resp.Question, string(resp.Category), resp.MediaURL,
		resp.Transcript, resp.Duration, analysis, resp.RecordedAt)
	if err != nil {
		tx.Rollback()
		if exists, lookupErr := s.responseExists(ctx, interviewID, resp.QuestionID); lookupErr == nil && exists {
			return ErrResponseExists
		}
		return fmt.Errorf("insert response: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit response: %w", err)
	}
	return nil
}

func (s *Service) responseExists(ctx context.Context, interviewID int64, questionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM video_interview_responses WHERE interview_id = ? AND question_id = ?)`),
		interviewID, questionID).Scan(&exists)
	return exists, err
}

// markCompleted writes the summary only if the session is still in progress.
func (s *Service) markCompleted(ctx context.Context, interviewID int64, summary *models.Summary, now time.Time) error {
	strengths, err := json.Marshal(summary.Strengths)
	if err != nil {
		return fmt.Errorf("encode strengths: %w", err)
	}
	improvements, err := json.Marshal(summary.Improvements)
	if err != nil {
		return fmt.Errorf("encode improvements: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE video_interviews SET status = ?, completed_at = ?, updated_at = ?, duration = ?,
			overall_score = ?, confidence_score = ?, clarity_score = ?, content_score = ?,
			strengths = ?, improvements = ?, feedback = ?
		 WHERE id = ? AND status = ?`),
		string(models.StatusCompleted), summary.CompletedAt, now, summary.Duration,
		floatArg(summary.OverallScore), floatArg(summary.ConfidenceScore), floatArg(summary.ClarityScore), floatArg(summary.ContentScore),
		string(strengths), string(improvements), string(summary.Feedback),
		interviewID, string(models.StatusInProgress))
	if err != nil {
		return fmt.Errorf("complete interview: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

func (s *Service) deleteOwned(ctx context.Context, userID int64, token string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		s.db.Rebind(`SELECT id FROM video_interviews WHERE session_token = ? AND user_id = ?`), token, userID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lookup interview: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM video_interview_responses WHERE interview_id = ?`), id); err != nil {
		return 0, fmt.Errorf("delete responses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM video_interviews WHERE id = ?`), id); err != nil {
		return 0, fmt.Errorf("delete interview: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return id, nil
}
