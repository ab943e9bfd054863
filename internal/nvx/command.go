package nvx

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Command is one write request. Body is marshalled as JSON and must be
// rooted at the "Device" object.
type Command struct {
	Path string
	Body map[string]any
}

// NewCommand builds a command that sets value at the slash separated path
// below Device, e.g. NewCommand("Ethernet/IgmpVersion", "v3") posts
// {"Device":{"Ethernet":{"IgmpVersion":"v3"}}} to Device/Ethernet.
func NewCommand(path string, value any) Command {
	segs := strings.Split(path, "/")
	var node any = value
	for i := len(segs) - 1; i >= 0; i-- {
		node = map[string]any{segs[i]: node}
	}
	return Command{
		Path: "Device/" + segs[0],
		Body: map[string]any{"Device": node},
	}
}

// NewObjectCommand posts obj as the content of the top-level object named
// target, e.g. NewObjectCommand("DeviceOperations", {"Reboot": true}).
func NewObjectCommand(target string, obj map[string]any) Command {
	return Command{
		Path: "Device/" + target,
		Body: map[string]any{"Device": map[string]any{target: obj}},
	}
}

// ActionResult is the outcome the device reports for one property write.
type ActionResult struct {
	Path       string `json:"Path"`
	Property   string `json:"Property"`
	StatusID   int    `json:"StatusId"`
	StatusInfo string `json:"StatusInfo"`
}

// ActionResults are all results of one command.
type ActionResults []ActionResult

// Err returns ErrCommandRejected describing the first failed result.
func (r ActionResults) Err() error {
	for _, res := range r {
		if res.StatusID < 0 {
			return fmt.Errorf("%w: %s %s (status %d)", ErrCommandRejected, res.Path, res.StatusInfo, res.StatusID)
		}
	}
	return nil
}

type actionsReply struct {
	Actions []struct {
		Operation    string        `json:"Operation"`
		TargetObject string        `json:"TargetObject"`
		Results      ActionResults `json:"Results"`
	} `json:"Actions"`
}

func decodeResults(r io.Reader) (ActionResults, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var reply actionsReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var results ActionResults
	for _, a := range reply.Actions {
		results = append(results, a.Results...)
	}
	return results, nil
}
