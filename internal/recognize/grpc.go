package recognize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/kombo/internal/audio"
	"github.com/rbright/kombo/internal/segment"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GRPC calls a unary recognizer method that takes the utterance WAV as a
// google.protobuf.BytesValue and answers with a google.protobuf.Struct
// shaped like the HTTP JSON response.
type GRPC struct {
	conn     *grpc.ClientConn
	method   string
	language string
}

// DialGRPC connects to endpoint and waits for the channel to become ready.
func DialGRPC(ctx context.Context, endpoint, method, language string, dialTimeout time.Duration, opts ...grpc.DialOption) (*GRPC, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("recognizer endpoint is empty")
	}
	if dialTimeout <= 0 {
		dialTimeout = 3 * time.Second
	}

	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial recognizer grpc %q: %w", endpoint, err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for recognizer grpc readiness: %w", err)
	}

	return &GRPC{conn: conn, method: method, language: language}, nil
}

// Recognize implements Recognizer.
func (g *GRPC) Recognize(ctx context.Context, u segment.Utterance) ([]Candidate, error) {
	wav, err := audio.EncodeUtterance(u)
	if err != nil {
		return nil, fmt.Errorf("encode utterance: %w", err)
	}

	md := []string{}
	if g.language != "" {
		md = append(md, "language", g.language)
	}
	if u.ID != "" {
		md = append(md, "utterance-id", u.ID)
	}
	if len(md) > 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, md...)
	}

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, g.method, wrapperspb.Bytes(wav), resp); err != nil {
		return nil, fmt.Errorf("invoke %s: %w", g.method, err)
	}
	return structCandidates(resp), nil
}

// Ready runs the standard gRPC health check against the recognizer service.
func (g *GRPC) Ready(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(g.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("recognizer health is %s", resp.GetStatus())
	}
	return nil
}

// Close implements Recognizer.
func (g *GRPC) Close() error {
	return g.conn.Close()
}

func structCandidates(resp *structpb.Struct) []Candidate {
	fields := resp.GetFields()
	if list := fields["candidates"].GetListValue(); list != nil {
		out := make([]Candidate, 0, len(list.GetValues()))
		for _, v := range list.GetValues() {
			out = append(out, structCandidate(v.GetStructValue().GetFields()))
		}
		return out
	}
	if _, ok := fields["text"]; ok {
		return []Candidate{structCandidate(fields)}
	}
	return nil
}

func structCandidate(fields map[string]*structpb.Value) Candidate {
	c := Candidate{Text: fields["text"].GetStringValue(), Confidence: 1}
	if v, ok := fields["confidence"]; ok {
		c.Confidence = v.GetNumberValue()
	}
	return c
}

// waitForReady blocks until gRPC connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
