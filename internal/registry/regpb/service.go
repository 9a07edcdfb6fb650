// Package regpb описывает grpc-сервис реестра: дескриптор, серверную и клиентскую обвязку.
// сообщения передаются как google.protobuf.Struct, типизированные структуры лежат в messages.go.
package regpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "gofiledrop.registry.v1.RegService"

const (
	methodRegisterFile = "RegisterFile"
	methodResolveToken = "ResolveToken"
	methodConsumeToken = "ConsumeToken"
	methodMintLink     = "MintLink"
)

// полные имена методов, для интерцепторов
const (
	RegisterFileFullMethod = "/" + ServiceName + "/" + methodRegisterFile
	ResolveTokenFullMethod = "/" + ServiceName + "/" + methodResolveToken
	ConsumeTokenFullMethod = "/" + ServiceName + "/" + methodConsumeToken
	MintLinkFullMethod     = "/" + ServiceName + "/" + methodMintLink
)

type RegServiceServer interface {
	RegisterFile(context.Context, *RegisterFileRequest) (*RegisterFileResponse, error)
	ResolveToken(context.Context, *ResolveTokenRequest) (*ResolveTokenResponse, error)
	ConsumeToken(context.Context, *ConsumeTokenRequest) (*ConsumeTokenResponse, error)
	MintLink(context.Context, *MintLinkRequest) (*MintLinkResponse, error)
}

// UnimplementedRegServiceServer встраивается в реализацию сервера
type UnimplementedRegServiceServer struct{}

func (UnimplementedRegServiceServer) RegisterFile(context.Context, *RegisterFileRequest) (*RegisterFileResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RegisterFile not implemented")
}

func (UnimplementedRegServiceServer) ResolveToken(context.Context, *ResolveTokenRequest) (*ResolveTokenResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ResolveToken not implemented")
}

func (UnimplementedRegServiceServer) ConsumeToken(context.Context, *ConsumeTokenRequest) (*ConsumeTokenResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ConsumeToken not implemented")
}

func (UnimplementedRegServiceServer) MintLink(context.Context, *MintLinkRequest) (*MintLinkResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method MintLink not implemented")
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodRegisterFile,
			Handler: unary[RegisterFileRequest](RegisterFileFullMethod,
				func(s RegServiceServer, ctx context.Context, in *RegisterFileRequest) (message, error) {
					return s.RegisterFile(ctx, in)
				}),
		},
		{
			MethodName: methodResolveToken,
			Handler: unary[ResolveTokenRequest](ResolveTokenFullMethod,
				func(s RegServiceServer, ctx context.Context, in *ResolveTokenRequest) (message, error) {
					return s.ResolveToken(ctx, in)
				}),
		},
		{
			MethodName: methodConsumeToken,
			Handler: unary[ConsumeTokenRequest](ConsumeTokenFullMethod,
				func(s RegServiceServer, ctx context.Context, in *ConsumeTokenRequest) (message, error) {
					return s.ConsumeToken(ctx, in)
				}),
		},
		{
			MethodName: methodMintLink,
			Handler: unary[MintLinkRequest](MintLinkFullMethod,
				func(s RegServiceServer, ctx context.Context, in *MintLinkRequest) (message, error) {
					return s.MintLink(ctx, in)
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "registry/v1/registry.proto",
}

func RegisterRegServiceServer(s grpc.ServiceRegistrar, srv RegServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary собирает обработчик метода: Struct -> запрос -> вызов сервера -> Struct.
// интерцепторы видят запрос и ответ в виде *structpb.Struct.
func unary[Req any, PReq interface {
	*Req
	message
}](fullMethod string, call func(RegServiceServer, context.Context, PReq) (message, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		handler := func(ctx context.Context, req any) (any, error) {
			st, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Errorf(codes.Internal, "unexpected request type %T", req)
			}

			typed := PReq(new(Req))
			if err := typed.fromStruct(st); err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}

			resp, err := call(srv.(RegServiceServer), ctx, typed)
			if err != nil {
				return nil, err
			}

			out, err := resp.toStruct()
			if err != nil {
				return nil, status.Error(codes.Internal, err.Error())
			}
			return out, nil
		}

		if interceptor == nil {
			return handler(ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		return interceptor(ctx, in, info, handler)
	}
}

type RegServiceClient interface {
	RegisterFile(ctx context.Context, in *RegisterFileRequest, opts ...grpc.CallOption) (*RegisterFileResponse, error)
	ResolveToken(ctx context.Context, in *ResolveTokenRequest, opts ...grpc.CallOption) (*ResolveTokenResponse, error)
	ConsumeToken(ctx context.Context, in *ConsumeTokenRequest, opts ...grpc.CallOption) (*ConsumeTokenResponse, error)
	MintLink(ctx context.Context, in *MintLinkRequest, opts ...grpc.CallOption) (*MintLinkResponse, error)
}

type regServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRegServiceClient(cc grpc.ClientConnInterface) RegServiceClient {
	return &regServiceClient{cc: cc}
}

func (c *regServiceClient) RegisterFile(ctx context.Context, in *RegisterFileRequest, opts ...grpc.CallOption) (*RegisterFileResponse, error) {
	out := new(RegisterFileResponse)
	if err := c.invoke(ctx, RegisterFileFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *regServiceClient) ResolveToken(ctx context.Context, in *ResolveTokenRequest, opts ...grpc.CallOption) (*ResolveTokenResponse, error) {
	out := new(ResolveTokenResponse)
	if err := c.invoke(ctx, ResolveTokenFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *regServiceClient) ConsumeToken(ctx context.Context, in *ConsumeTokenRequest, opts ...grpc.CallOption) (*ConsumeTokenResponse, error) {
	out := new(ConsumeTokenResponse)
	if err := c.invoke(ctx, ConsumeTokenFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *regServiceClient) MintLink(ctx context.Context, in *MintLinkRequest, opts ...grpc.CallOption) (*MintLinkResponse, error) {
	out := new(MintLinkResponse)
	if err := c.invoke(ctx, MintLinkFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *regServiceClient) invoke(ctx context.Context, method string, in, out message, opts ...grpc.CallOption) error {
	req, err := in.toStruct()
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, resp, opts...); err != nil {
		return err
	}

	if err := out.fromStruct(resp); err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return nil
}
