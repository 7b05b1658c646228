/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package network

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// StructService answers unary RPCs whose request and response are protobuf Structs.
// The mesh registries speak it, so no generated stubs are needed on either side
type StructService interface {
	HandleStruct(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error)
}

// NewStructServiceDesc describes service with the given unary methods, all served by a StructService
func NewStructServiceDesc(service string, methods ...string) *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: service,
		HandlerType: (*StructService)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    service,
	}
	for _, method := range methods {
		name := method
		fullMethod := fmt.Sprintf("/%s/%s", service, name)

		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: name,
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				call := func(ctx context.Context, req any) (any, error) {
					return srv.(StructService).HandleStruct(ctx, name, req.(*structpb.Struct))
				}
				if interceptor == nil {
					return call(ctx, in)
				}
				return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, call)
			},
		})
	}
	return desc
}

// InvokeStruct calls service/method on addr with req, using a short lived plaintext connection
func InvokeStruct(ctx context.Context, addr, service, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("Could not encode the request: %v", err)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, fmt.Sprintf("/%s/%s", service, method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// StructString reads a string field, empty when missing
func StructString(s *structpb.Struct, field string) string {
	return s.GetFields()[field].GetStringValue()
}

// StructBool reads a boolean field, false when missing
func StructBool(s *structpb.Struct, field string) bool {
	return s.GetFields()[field].GetBoolValue()
}

// StructList reads a list of objects, skipping the entries that are not objects
func StructList(s *structpb.Struct, field string) []*structpb.Struct {
	var out []*structpb.Struct
	for _, value := range s.GetFields()[field].GetListValue().GetValues() {
		if item := value.GetStructValue(); item != nil {
			out = append(out, item)
		}
	}
	return out
}
