package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratlens/stratlens/pkg/client"
)

// execute runs the root command against a stub API server and returns
// the combined output.
func execute(t *testing.T, handler http.HandlerFunc, args ...string) (string, error) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--server", server.URL))
	err := root.Execute()
	return out.String(), err
}

func TestGenerateCommand(t *testing.T) {
	var gotBody client.GenerateRequest
	out, err := execute(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/sessions/s1/results/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(client.GenerateAck{SessionID: "s1", Status: "accepted"})
	}, "generate", "s1", "--topic", "cold brew makers", "--force")

	require.NoError(t, err)
	assert.Equal(t, "cold brew makers", gotBody.Topic)
	assert.True(t, gotBody.Force)
	assert.Contains(t, out, "generation accepted for session s1")
}

func TestGenerateRequiresTopic(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"generate", "s1"})

	assert.Error(t, root.Execute())
}

func TestStatusCommandTextOutput(t *testing.T) {
	out, err := execute(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.GenerationStatus{
			SessionID: "s1", Status: "processing", CurrentStage: "consumer",
			ProgressPercentage: 60, TotalSegments: 5, CompletedSegments: 3,
		})
	}, "status", "s1")

	require.NoError(t, err)
	assert.Contains(t, out, "status:    processing")
	assert.Contains(t, out, "60% (3/5 segments)")
}

func TestStatusCommandJSONOutput(t *testing.T) {
	out, err := execute(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.GenerationStatus{SessionID: "s1", Status: "completed"})
	}, "status", "s1", "-o", "json")

	require.NoError(t, err)
	var status client.GenerationStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "completed", status.Status)
}

func TestResultsCommandSummaries(t *testing.T) {
	out, err := execute(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.SessionResults{
			SessionID: "s1",
			Segments: []client.SegmentBundle{
				{Segment: "market", Factors: make([]client.FactorScore, 6)},
				{Segment: "consumer", Factors: make([]client.FactorScore, 7),
					Personas: make([]client.Persona, 3)},
			},
		})
	}, "results", "s1")

	require.NoError(t, err)
	assert.Contains(t, out, "market: 6 factors")
	assert.Contains(t, out, "consumer: 7 factors")
	assert.Contains(t, out, "3 personas")
}

func TestResultsCommandSingleSegment(t *testing.T) {
	out, err := execute(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/sessions/s1/results/segments/brand", r.URL.Path)
		_ = json.NewEncoder(w).Encode(client.SegmentBundle{Segment: "brand"})
	}, "results", "s1", "--segment", "brand")

	require.NoError(t, err)
	assert.Contains(t, out, "brand: 0 factors")
}

func TestClearCommand(t *testing.T) {
	var gotMethod string
	out, err := execute(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}, "clear", "s1")

	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Contains(t, out, "results cleared for session s1")
}

func TestConflictSurfacesAsError(t *testing.T) {
	_, err := execute(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code": "GEN_002", "message": "generation already in progress",
		})
	}, "generate", "s1", "--topic", "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEN_002")
}

func TestRootCommandStructure(t *testing.T) {
	root := NewRootCommand()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"generate", "status", "results", "clear"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
