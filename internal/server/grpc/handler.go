package grpc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/server/identity"
	"github.com/dmitrijs2005/rollkeeper/internal/server/models"
	"github.com/dmitrijs2005/rollkeeper/internal/server/roster"
	"github.com/dmitrijs2005/rollkeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	created, err := s.sessions.CreateSession(ctx, services.CreateSessionRequest{
		SubjectID:   str(req, "subject_id"),
		BranchID:    str(req, "branch_id"),
		Semester:    num(req, "semester"),
		DurationSec: num(req, "duration_sec"),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return reply(map[string]any{
		"session_id": created.SessionID,
		"token":      created.Token,
		"expires_at": stamp(created.ExpiresAt),
	})
}

func (s *GRPCServer) ResolveSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	st, err := s.sessions.ResolveByToken(ctx, str(req, "token"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out := sessionFields(st.Session)
	out["active"] = st.Active
	out["total_marked"] = st.TotalMarked
	return reply(out)
}

func (s *GRPCServer) MarkAttendance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	caller, _ := identity.FromContext(ctx)
	if caller.Role != common.RoleStudent {
		return nil, status.Error(codes.PermissionDenied, "only students can mark attendance")
	}

	selfie, err := bin(req, "selfie")
	if err != nil {
		return nil, err
	}

	res, err := s.ledger.MarkAttendance(ctx, services.MarkRequest{
		Token:     str(req, "token"),
		StudentID: caller.UserID,
		SelfieRef: str(req, "selfie_ref"),
		Selfie:    selfie,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return reply(map[string]any{
		"attendance_id": res.AttendanceID,
		"marked_at":     stamp(res.MarkedAt),
		"selfie_ref":    res.SelfieRef,
		"selfie_url":    res.SelfieURL,
	})
}

func (s *GRPCServer) CloseSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	session, err := s.sessions.CloseSession(ctx, str(req, "session_id"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return reply(sessionFields(session))
}

func (s *GRPCServer) RemoveAttendance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	if err := s.ledger.RemoveAttendance(ctx, str(req, "session_id"), str(req, "attendance_id")); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return reply(map[string]any{"removed": true})
}

func (s *GRPCServer) ListPresent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	items, err := s.ledger.ListPresent(ctx, str(req, "session_id"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	list := make([]any, 0, len(items))
	for _, it := range items {
		list = append(list, map[string]any{
			"attendance_id": it.ID,
			"student_id":    it.StudentID,
			"enrollment_no": it.EnrollmentNo,
			"name":          it.Name,
			"marked_at":     stamp(it.MarkedAt),
			"selfie_url":    it.SelfieURL,
		})
	}

	return reply(map[string]any{"present": list, "total": len(items)})
}

func (s *GRPCServer) ExportRoster(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	if err := requireFaculty(ctx); err != nil {
		return nil, err
	}

	format := formatOf(req)
	data, err := s.reconciler.ExportRoster(ctx, str(req, "subject_id"), format)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return reply(map[string]any{"format": format, "data": data})
}

func (s *GRPCServer) ExportSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	format := formatOf(req)
	data, err := s.ledger.ExportSession(ctx, str(req, "session_id"), format)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return reply(map[string]any{"format": format, "data": data})
}

func (s *GRPCServer) ImportRoster(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	data, err := bin(req, "data")
	if err != nil {
		return nil, err
	}

	res, err := s.imports.ImportRoster(ctx, services.ImportRequest{
		SessionID: str(req, "session_id"),
		FileName:  str(req, "file_name"),
		Data:      data,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return reply(map[string]any{
		"created":   res.Created,
		"deleted":   res.Deleted,
		"unchanged": res.Unchanged,
		"skipped":   res.Skipped,
	})
}

func (s *GRPCServer) RebuildRoster(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	if err := requireFaculty(ctx); err != nil {
		return nil, err
	}

	subjectID := str(req, "subject_id")
	if subjectID == "" {
		return nil, status.Error(codes.InvalidArgument, "subject_id is required")
	}
	if err := s.reconciler.Rebuild(ctx, subjectID); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	digest := ""
	data, err := s.reconciler.Snapshot(ctx, subjectID)
	switch {
	case err == nil:
		digest = roster.Digest(data)
	case !errors.Is(err, common.ErrNotFound):
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "roster rebuilt on request", "subject_id", subjectID, "digest", digest)
	return reply(map[string]any{"subject_id": subjectID, "digest": digest})
}

func (s *GRPCServer) MySummary(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	caller, _ := identity.FromContext(ctx)
	subjectID := str(req, "subject_id")

	sum, err := s.ledger.SubjectSummary(ctx, caller.UserID, subjectID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	records, err := s.ledger.MyAttendance(ctx, caller.UserID, subjectID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	list := make([]any, 0, len(records))
	for _, r := range records {
		list = append(list, map[string]any{
			"session_id": r.SessionID,
			"marked_at":  stamp(r.MarkedAt),
			"status":     r.Status,
		})
	}

	return reply(map[string]any{
		"subject_id":     sum.SubjectID,
		"total_sessions": sum.TotalSessions,
		"present_count":  sum.PresentCount,
		"percentage":     sum.Percentage,
		"records":        list,
	})
}

func (s *GRPCServer) SessionQR(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	png, err := s.sessions.SessionQR(ctx, str(req, "session_id"), num(req, "size"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return reply(map[string]any{"png": png})
}

// toStatus maps service errors onto gRPC status codes. Unexpected errors are
// logged and reported without detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrBadRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, err.Error())
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func requireFaculty(ctx context.Context) error {
	caller, ok := identity.FromContext(ctx)
	if !ok || !caller.IsFaculty() {
		return status.Error(codes.PermissionDenied, "faculty only")
	}
	return nil
}

func sessionFields(s *models.Session) map[string]any {
	out := map[string]any{
		"session_id": s.ID,
		"subject_id": s.SubjectID,
		"branch_id":  s.BranchID,
		"semester":   s.Semester,
		"faculty_id": s.FacultyID,
		"expires_at": stamp(s.ExpiresAt),
		"closed_at":  nil,
	}
	if s.ClosedAt != nil {
		out["closed_at"] = stamp(*s.ClosedAt)
	}
	return out
}

func formatOf(req *structpb.Struct) string {
	if f := str(req, "format"); f != "" {
		return f
	}
	return roster.FormatXLSX
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func str(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func num(req *structpb.Struct, key string) int {
	return int(req.GetFields()[key].GetNumberValue())
}

// bin decodes a base64 field. Binary payloads travel as standard base64,
// which is also how structpb encodes []byte replies.
func bin(req *structpb.Struct, key string) ([]byte, error) {
	v := str(req, key)
	if v == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%s: invalid base64", key))
	}
	return b, nil
}

func reply(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
