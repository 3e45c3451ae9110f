package envserver

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/supplier-sim/core"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// SessionInfo describes a freshly created session.
type SessionInfo struct {
	ID          string
	EpisodeID   string
	SupplierNum int
	StateSpace  int
	ActionSpace int
	Days        int
	Observation *mat.Dense
}

// RenderInfo is the reply of Render.
type RenderInfo struct {
	Day         int
	Phase       string
	EpisodeID   string
	Demand      float64 // demand of the current day
	Observation *mat.Dense
}

// HistoryColumns is the reply of History. All slices share Dates' length.
type HistoryColumns struct {
	Dates    []time.Time
	Purchase []float64
	Demand   []float64
	Shortage []float64
	Cost     []float64
	Reward   []float64
}

// Client is a typed wrapper over the EnvService RPCs.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc. Dial with RequestIDUnaryClientInterceptor to forward
// request IDs.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSession opens a session and returns its first observation.
func (c *Client) CreateSession(ctx context.Context) (SessionInfo, error) {
	out, err := c.invoke(ctx, "CreateSession", nil)
	if err != nil {
		return SessionInfo{}, err
	}
	obs, err := matrixOf(out.GetFields()[fieldObservation])
	if err != nil {
		return SessionInfo{}, err
	}
	return SessionInfo{
		ID:          out.GetFields()[fieldSessionID].GetStringValue(),
		EpisodeID:   out.GetFields()[fieldEpisodeID].GetStringValue(),
		SupplierNum: intOf(out, fieldSupplierNum),
		StateSpace:  intOf(out, fieldStateSpace),
		ActionSpace: intOf(out, fieldActionSpace),
		Days:        intOf(out, fieldDays),
		Observation: obs,
	}, nil
}

// Reset starts a new episode and returns its ID and first observation.
func (c *Client) Reset(ctx context.Context, sessionID string) (string, *mat.Dense, error) {
	out, err := c.invoke(ctx, "Reset", map[string]interface{}{fieldSessionID: sessionID})
	if err != nil {
		return "", nil, err
	}
	obs, err := matrixOf(out.GetFields()[fieldObservation])
	if err != nil {
		return "", nil, err
	}
	return out.GetFields()[fieldEpisodeID].GetStringValue(), obs, nil
}

// Step submits supplier indices.
func (c *Client) Step(ctx context.Context, sessionID string, action []int) (core.StepResult, error) {
	idx := make([]interface{}, len(action))
	for i, a := range action {
		idx[i] = a
	}
	return c.step(ctx, map[string]interface{}{fieldSessionID: sessionID, fieldAction: idx})
}

// StepCode submits a discrete action code.
func (c *Client) StepCode(ctx context.Context, sessionID string, code int) (core.StepResult, error) {
	return c.step(ctx, map[string]interface{}{fieldSessionID: sessionID, fieldCode: code})
}

func (c *Client) step(ctx context.Context, req map[string]interface{}) (core.StepResult, error) {
	out, err := c.invoke(ctx, "Step", req)
	if err != nil {
		return core.StepResult{}, err
	}
	obs, err := matrixOf(out.GetFields()[fieldObservation])
	if err != nil {
		return core.StepResult{}, err
	}
	info := out.GetFields()[fieldInfo].GetStructValue()
	res := core.StepResult{
		Observation: obs,
		Reward:      numberOf(out, fieldReward),
		Done:        out.GetFields()[fieldDone].GetBoolValue(),
		Info: core.StepInfo{
			Day:          intOf(info, fieldDay),
			DataTerminal: info.GetFields()[fieldDataTerminal].GetBoolValue(),
			ScaledReward: numberOf(info, fieldScaledReward),
			Allocation:   floatsOf(info.GetFields()[fieldAllocation]),
			Gap:          numberOf(info, fieldGap),
			Cost:         numberOf(info, fieldCost),
		},
	}
	if s := info.GetFields()[fieldSummary].GetStructValue(); s != nil {
		res.Info.Summary = summaryOf(s)
	}
	return res, nil
}

// Render returns the session's current observation.
func (c *Client) Render(ctx context.Context, sessionID string) (RenderInfo, error) {
	out, err := c.invoke(ctx, "Render", map[string]interface{}{fieldSessionID: sessionID})
	if err != nil {
		return RenderInfo{}, err
	}
	obs, err := matrixOf(out.GetFields()[fieldObservation])
	if err != nil {
		return RenderInfo{}, err
	}
	return RenderInfo{
		Day:         intOf(out, fieldDay),
		Phase:       out.GetFields()[fieldPhase].GetStringValue(),
		EpisodeID:   out.GetFields()[fieldEpisodeID].GetStringValue(),
		Demand:      numberOf(out, fieldDemand),
		Observation: obs,
	}, nil
}

// History returns the episode's history columns.
func (c *Client) History(ctx context.Context, sessionID string) (HistoryColumns, error) {
	out, err := c.invoke(ctx, "History", map[string]interface{}{fieldSessionID: sessionID})
	if err != nil {
		return HistoryColumns{}, err
	}
	f := out.GetFields()
	h := HistoryColumns{
		Purchase: floatsOf(f[fieldPurchase]),
		Demand:   floatsOf(f[fieldDemand]),
		Shortage: floatsOf(f[fieldShortage]),
		Cost:     floatsOf(f[fieldCost]),
		Reward:   floatsOf(f[fieldReward]),
	}
	for _, v := range f[fieldDates].GetListValue().GetValues() {
		d, err := time.Parse(time.RFC3339, v.GetStringValue())
		if err != nil {
			return HistoryColumns{}, fmt.Errorf("history date %q: %w", v.GetStringValue(), err)
		}
		h.Dates = append(h.Dates, d)
	}
	return h, nil
}

// CloseSession drops the session on the server.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	_, err := c.invoke(ctx, "CloseSession", map[string]interface{}{fieldSessionID: sessionID})
	return err
}
