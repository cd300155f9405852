package grpcclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/blackmouse572/skin-doctor/internal/facequality"
	"github.com/blackmouse572/skin-doctor/internal/imageio"
	"github.com/blackmouse572/skin-doctor/internal/landmarker"
	"github.com/blackmouse572/skin-doctor/internal/logging"
)

const (
	methodOpen   = "/landmarker.v1.FaceLandmarker/Open"
	methodDetect = "/landmarker.v1.FaceLandmarker/Detect"
	methodClose  = "/landmarker.v1.FaceLandmarker/Close"

	frameJPEGQuality = 85
)

// DialLandmarker connects to the face landmark service and returns a Loader
// that opens one remote session per acquired detector.
func DialLandmarker(ctx context.Context, addr string, logger *zap.Logger) (landmarker.Loader, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_landmarker", "", err)
		logger.Error("failed to dial face landmarker", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewLoader(conn, logger), conn, nil
}

// NewLoader builds a Loader on top of an existing connection.
func NewLoader(conn grpc.ClientConnInterface, logger *zap.Logger) landmarker.Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, opts landmarker.Options) (landmarker.Detector, error) {
		req, err := structpb.NewStruct(map[string]any{
			"num_faces":                     opts.NumFaces,
			"min_face_detection_confidence": opts.MinFaceDetectionConfidence,
			"min_tracking_confidence":       opts.MinTrackingConfidence,
			"delegate":                      string(opts.Delegate),
			"mode":                          string(opts.Mode),
		})
		if err != nil {
			return nil, logging.NewOperationError("grpcclient.open", "", err)
		}

		resp := &structpb.Struct{}
		if err := conn.Invoke(ctx, methodOpen, req, resp); err != nil {
			wrapped := logging.NewOperationError("grpcclient.open", "", err)
			logger.Error("face landmarker open failed", zap.Error(wrapped))
			return nil, wrapped
		}
		sessionID := resp.GetFields()["session_id"].GetStringValue()
		if sessionID == "" {
			return nil, logging.NewOperationError("grpcclient.open", "", fmt.Errorf("response carries no session_id"))
		}

		return &grpcDetector{
			conn:      conn,
			sessionID: sessionID,
			logger:    logger.With(zap.String("session_id", sessionID)),
		}, nil
	}
}

type grpcDetector struct {
	conn      grpc.ClientConnInterface
	sessionID string
	logger    *zap.Logger
}

func (g *grpcDetector) DetectForFrame(ctx context.Context, frame image.Image, ts time.Duration) ([]facequality.LandmarkSet, error) {
	return g.detect(ctx, "grpcclient.detect_for_frame", frame, map[string]any{"timestamp_ms": float64(ts.Milliseconds())})
}

func (g *grpcDetector) DetectForImage(ctx context.Context, img image.Image) ([]facequality.LandmarkSet, error) {
	return g.detect(ctx, "grpcclient.detect_for_image", img, nil)
}

func (g *grpcDetector) Close() error {
	req, err := structpb.NewStruct(map[string]any{"session_id": g.sessionID})
	if err != nil {
		return logging.NewOperationError("grpcclient.close", g.sessionID, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.conn.Invoke(ctx, methodClose, req, &structpb.Struct{}); err != nil {
		wrapped := logging.NewOperationError("grpcclient.close", g.sessionID, err)
		g.logger.Warn("face landmarker close failed", zap.Error(wrapped))
		return wrapped
	}
	return nil
}

func (g *grpcDetector) detect(ctx context.Context, operation string, img image.Image, extra map[string]any) ([]facequality.LandmarkSet, error) {
	var buf bytes.Buffer
	if err := imageio.EncodeJPEG(&buf, img, frameJPEGQuality); err != nil {
		return nil, logging.NewOperationError(operation, g.sessionID, err)
	}

	fields := map[string]any{
		"session_id": g.sessionID,
		"image":      base64.StdEncoding.EncodeToString(buf.Bytes()),
	}
	for k, v := range extra {
		fields[k] = v
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, logging.NewOperationError(operation, g.sessionID, err)
	}

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, methodDetect, req, resp); err != nil {
		return nil, logging.NewOperationError(operation, g.sessionID, err)
	}

	faces, err := decodeFaces(resp)
	if err != nil {
		wrapped := logging.NewOperationError(operation, g.sessionID, err)
		g.logger.Error("malformed landmark response", zap.Error(wrapped))
		return nil, wrapped
	}
	return faces, nil
}

// decodeFaces reads faces: [{landmarks: [[x, y, z], ...]}, ...].
func decodeFaces(resp *structpb.Struct) ([]facequality.LandmarkSet, error) {
	value, ok := resp.GetFields()["faces"]
	if !ok {
		return nil, nil
	}
	list := value.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("faces is not a list")
	}

	faces := make([]facequality.LandmarkSet, 0, len(list.GetValues()))
	for i, faceValue := range list.GetValues() {
		points := faceValue.GetStructValue().GetFields()["landmarks"].GetListValue().GetValues()
		set := make(facequality.LandmarkSet, 0, len(points))
		for j, point := range points {
			coords := point.GetListValue().GetValues()
			if len(coords) < 2 {
				return nil, fmt.Errorf("face %d landmark %d: want [x, y, z], got %d values", i, j, len(coords))
			}
			l := facequality.Landmark{X: coords[0].GetNumberValue(), Y: coords[1].GetNumberValue()}
			if len(coords) > 2 {
				l.Z = coords[2].GetNumberValue()
			}
			set = append(set, l)
		}
		faces = append(faces, set)
	}
	return faces, nil
}
