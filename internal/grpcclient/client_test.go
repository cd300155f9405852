package grpcclient

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/blackmouse572/skin-doctor/internal/landmarker"
	"github.com/blackmouse572/skin-doctor/internal/logging"
)

type stubConn struct {
	responses map[string]*structpb.Struct
	errs      map[string]error
	requests  map[string][]*structpb.Struct
}

func newStubConn() *stubConn {
	return &stubConn{
		responses: map[string]*structpb.Struct{},
		errs:      map[string]error{},
		requests:  map[string][]*structpb.Struct{},
	}
}

func (s *stubConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	s.requests[method] = append(s.requests[method], args.(*structpb.Struct))
	if err := s.errs[method]; err != nil {
		return err
	}
	if resp, ok := s.responses[method]; ok {
		proto.Merge(reply.(proto.Message), resp)
	}
	return nil
}

func (s *stubConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("streams not supported")
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	return s
}

func TestLoaderOpensSessionAndDetects(t *testing.T) {
	conn := newStubConn()
	conn.responses[methodOpen] = mustStruct(t, map[string]any{"session_id": "sess-1"})
	conn.responses[methodDetect] = mustStruct(t, map[string]any{
		"faces": []any{
			map[string]any{"landmarks": []any{
				[]any{0.1, 0.2, 0.3},
				[]any{0.4, 0.5},
			}},
		},
	})

	detector, err := NewLoader(conn, zap.NewNop())(context.Background(), landmarker.VideoOptions())
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	open := conn.requests[methodOpen][0].AsMap()
	if open["num_faces"].(float64) != 1 || open["mode"] != "VIDEO" || open["delegate"] != "GPU" {
		t.Fatalf("unexpected open request: %v", open)
	}

	faces, err := detector.DetectForFrame(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)), 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected detect error: %v", err)
	}
	if len(faces) != 1 || len(faces[0]) != 2 {
		t.Fatalf("unexpected faces: %+v", faces)
	}
	if faces[0][0].Z != 0.3 || faces[0][1].X != 0.4 || faces[0][1].Z != 0 {
		t.Fatalf("unexpected landmarks: %+v", faces[0])
	}

	detect := conn.requests[methodDetect][0].AsMap()
	if detect["session_id"] != "sess-1" || detect["timestamp_ms"].(float64) != 1500 {
		t.Fatalf("unexpected detect request: %v", detect)
	}
	if detect["image"].(string) == "" {
		t.Fatal("expected encoded frame in request")
	}

	if err := detector.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if len(conn.requests[methodClose]) != 1 {
		t.Fatalf("expected one close call, got %d", len(conn.requests[methodClose]))
	}
}

func TestDetectWithoutFacesReturnsEmpty(t *testing.T) {
	conn := newStubConn()
	conn.responses[methodOpen] = mustStruct(t, map[string]any{"session_id": "sess-2"})

	detector, err := NewLoader(conn, nil)(context.Background(), landmarker.ImageOptions())
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	faces, err := detector.DetectForImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatalf("unexpected detect error: %v", err)
	}
	if len(faces) != 0 {
		t.Fatalf("expected no faces, got %d", len(faces))
	}
}

func TestDetectErrorsAreWrapped(t *testing.T) {
	conn := newStubConn()
	conn.responses[methodOpen] = mustStruct(t, map[string]any{"session_id": "sess-3"})
	conn.errs[methodDetect] = status.Error(codes.InvalidArgument, "ROI width and height must be > 0")

	detector, err := NewLoader(conn, nil)(context.Background(), landmarker.VideoOptions())
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	_, err = detector.DetectForFrame(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)), 0)

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "grpcclient.detect_for_frame" || opErr.RequestID != "sess-3" {
		t.Fatalf("unexpected operation error: %+v", opErr)
	}
	if !landmarker.IsBenignROI(err) {
		t.Fatal("expected ROI error to stay recognisable after wrapping")
	}
}

func TestOpenFailure(t *testing.T) {
	conn := newStubConn()
	conn.errs[methodOpen] = status.Error(codes.Unavailable, "model not loaded")

	_, err := NewLoader(conn, nil)(context.Background(), landmarker.VideoOptions())
	if status.Code(errors.Unwrap(err)) != codes.Unavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestOpenRequiresSession(t *testing.T) {
	conn := newStubConn()
	if _, err := NewLoader(conn, nil)(context.Background(), landmarker.VideoOptions()); err == nil {
		t.Fatal("expected error for missing session id")
	}
}

func TestDecodeFacesRejectsShortPoints(t *testing.T) {
	resp := mustStruct(t, map[string]any{
		"faces": []any{map[string]any{"landmarks": []any{[]any{0.1}}}},
	})
	if _, err := decodeFaces(resp); err == nil {
		t.Fatal("expected error for landmark without y")
	}
}
