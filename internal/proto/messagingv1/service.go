package messagingv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "rentme.messaging.v1.MessagingService"

const (
	MethodGetOrCreateConversationForBooking = "/" + ServiceName + "/GetOrCreateConversationForBooking"
	MethodGetConversation                   = "/" + ServiceName + "/GetConversation"
	MethodListConversations                 = "/" + ServiceName + "/ListConversations"
	MethodListMessages                      = "/" + ServiceName + "/ListMessages"
	MethodSendMessage                       = "/" + ServiceName + "/SendMessage"
	MethodMarkMessageRead                   = "/" + ServiceName + "/MarkMessageRead"
)

// MessagingServiceServer is implemented by the messaging service.
type MessagingServiceServer interface {
	GetOrCreateConversationForBooking(context.Context, *GetOrCreateConversationForBookingRequest) (*GetConversationResponse, error)
	GetConversation(context.Context, *GetConversationRequest) (*GetConversationResponse, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	MarkMessageRead(context.Context, *MarkMessageReadRequest) (*MarkMessageReadResponse, error)
}

// UnimplementedMessagingServiceServer answers every method with Unimplemented.
type UnimplementedMessagingServiceServer struct{}

func (UnimplementedMessagingServiceServer) GetOrCreateConversationForBooking(context.Context, *GetOrCreateConversationForBookingRequest) (*GetConversationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrCreateConversationForBooking not implemented")
}

func (UnimplementedMessagingServiceServer) GetConversation(context.Context, *GetConversationRequest) (*GetConversationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetConversation not implemented")
}

func (UnimplementedMessagingServiceServer) ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListConversations not implemented")
}

func (UnimplementedMessagingServiceServer) ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListMessages not implemented")
}

func (UnimplementedMessagingServiceServer) SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SendMessage not implemented")
}

func (UnimplementedMessagingServiceServer) MarkMessageRead(context.Context, *MarkMessageReadRequest) (*MarkMessageReadResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method MarkMessageRead not implemented")
}

// RegisterMessagingServiceServer attaches srv to s.
func RegisterMessagingServiceServer(s grpc.ServiceRegistrar, srv MessagingServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unary[Req, Resp any](fullMethod string, call func(MessagingServiceServer, context.Context, *Req) (*Resp, error)) unaryHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		impl := srv.(MessagingServiceServer)
		if interceptor == nil {
			return call(impl, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(impl, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessagingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetOrCreateConversationForBooking",
			Handler:    unary(MethodGetOrCreateConversationForBooking, MessagingServiceServer.GetOrCreateConversationForBooking),
		},
		{
			MethodName: "GetConversation",
			Handler:    unary(MethodGetConversation, MessagingServiceServer.GetConversation),
		},
		{
			MethodName: "ListConversations",
			Handler:    unary(MethodListConversations, MessagingServiceServer.ListConversations),
		},
		{
			MethodName: "ListMessages",
			Handler:    unary(MethodListMessages, MessagingServiceServer.ListMessages),
		},
		{
			MethodName: "SendMessage",
			Handler:    unary(MethodSendMessage, MessagingServiceServer.SendMessage),
		},
		{
			MethodName: "MarkMessageRead",
			Handler:    unary(MethodMarkMessageRead, MessagingServiceServer.MarkMessageRead),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rentme/messaging/v1/messaging.proto",
}

// MessagingServiceClient is the caller side of the contract.
type MessagingServiceClient interface {
	GetOrCreateConversationForBooking(ctx context.Context, in *GetOrCreateConversationForBookingRequest, opts ...grpc.CallOption) (*GetConversationResponse, error)
	GetConversation(ctx context.Context, in *GetConversationRequest, opts ...grpc.CallOption) (*GetConversationResponse, error)
	ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (*ListConversationsResponse, error)
	ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error)
	SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error)
	MarkMessageRead(ctx context.Context, in *MarkMessageReadRequest, opts ...grpc.CallOption) (*MarkMessageReadResponse, error)
}

type messagingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMessagingServiceClient(cc grpc.ClientConnInterface) MessagingServiceClient {
	return &messagingServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *messagingServiceClient) GetOrCreateConversationForBooking(ctx context.Context, in *GetOrCreateConversationForBookingRequest, opts ...grpc.CallOption) (*GetConversationResponse, error) {
	return invoke[GetConversationResponse](ctx, c.cc, MethodGetOrCreateConversationForBooking, in, opts)
}

func (c *messagingServiceClient) GetConversation(ctx context.Context, in *GetConversationRequest, opts ...grpc.CallOption) (*GetConversationResponse, error) {
	return invoke[GetConversationResponse](ctx, c.cc, MethodGetConversation, in, opts)
}

func (c *messagingServiceClient) ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (*ListConversationsResponse, error) {
	return invoke[ListConversationsResponse](ctx, c.cc, MethodListConversations, in, opts)
}

func (c *messagingServiceClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, MethodListMessages, in, opts)
}

func (c *messagingServiceClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c.cc, MethodSendMessage, in, opts)
}

func (c *messagingServiceClient) MarkMessageRead(ctx context.Context, in *MarkMessageReadRequest, opts ...grpc.CallOption) (*MarkMessageReadResponse, error) {
	return invoke[MarkMessageReadResponse](ctx, c.cc, MethodMarkMessageRead, in, opts)
}
