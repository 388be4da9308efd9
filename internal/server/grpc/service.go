package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rollkeeper.v1.Attendance"

// Method names of the Attendance service.
const (
	MethodCreateSession    = "CreateSession"
	MethodResolveSession   = "ResolveSession"
	MethodMarkAttendance   = "MarkAttendance"
	MethodCloseSession     = "CloseSession"
	MethodRemoveAttendance = "RemoveAttendance"
	MethodListPresent      = "ListPresent"
	MethodExportRoster     = "ExportRoster"
	MethodExportSession    = "ExportSession"
	MethodImportRoster     = "ImportRoster"
	MethodRebuildRoster    = "RebuildRoster"
	MethodMySummary        = "MySummary"
	MethodSessionQR        = "SessionQR"
)

// FullMethod returns the /service/method path used on the wire.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// AttendanceServer is the server API of the Attendance service. Every
// message is a structpb.Struct so no generated stubs are needed.
type AttendanceServer interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkAttendance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveAttendance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPresent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportRoster(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ImportRoster(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RebuildRoster(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MySummary(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SessionQR(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AttendanceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AttendanceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AttendanceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Attendance service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AttendanceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCreateSession, AttendanceServer.CreateSession),
		unary(MethodResolveSession, AttendanceServer.ResolveSession),
		unary(MethodMarkAttendance, AttendanceServer.MarkAttendance),
		unary(MethodCloseSession, AttendanceServer.CloseSession),
		unary(MethodRemoveAttendance, AttendanceServer.RemoveAttendance),
		unary(MethodListPresent, AttendanceServer.ListPresent),
		unary(MethodExportRoster, AttendanceServer.ExportRoster),
		unary(MethodExportSession, AttendanceServer.ExportSession),
		unary(MethodImportRoster, AttendanceServer.ImportRoster),
		unary(MethodRebuildRoster, AttendanceServer.RebuildRoster),
		unary(MethodMySummary, AttendanceServer.MySummary),
		unary(MethodSessionQR, AttendanceServer.SessionQR),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rollkeeper/v1/attendance",
}

// Invoke calls one Attendance method over conn.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
