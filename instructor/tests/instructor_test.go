package tests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzaessahbaoui/ai-instructor/instructor"
	"github.com/hamzaessahbaoui/ai-instructor/pkg/models"
	"github.com/hamzaessahbaoui/ai-instructor/pkg/schema"
	"github.com/hamzaessahbaoui/ai-instructor/pkg/transport"
)

// --- Test End-to-End Extraction ---

func TestExtract_OpenAI(t *testing.T) {
	tr := replying(openAIReply(t, "UserDetail", `{"name":"Jason","age":25}`))
	client := instructor.NewOpenAI(tr)

	user, err := instructor.Extract[models.UserDetail](context.Background(), client, userParams("Extract Jason is 25 years old"))
	require.NoError(t, err)
	assert.Equal(t, "Jason", user.Name)
	assert.Equal(t, 25, user.Age)

	require.Equal(t, 1, tr.calls())
	assert.Equal(t, []string{"chat/completions"}, tr.paths)

	sent := tr.lastBody(t)
	assert.Equal(t, "gpt-4o", sent["model"])
	tools, ok := sent["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "function", tool["type"])
	fn := tool["function"].(map[string]any)
	assert.Equal(t, "UserDetail", fn["name"])
	assert.Equal(t, models.UserDetail{}.Instructions(), fn["description"])
	params := fn["parameters"].(map[string]any)
	assert.Equal(t, []any{"name", "age"}, params["required"])

	assert.Equal(t, map[string]any{
		"type":     "function",
		"function": map[string]any{"name": "UserDetail"},
	}, sent["tool_choice"])
}

func TestCall_DescriptorModel(t *testing.T) {
	d := &schema.Descriptor{
		Name: "User",
		Fields: []schema.Field{
			{Name: "name", Type: schema.TypeString, Required: true},
			{Name: "age", Type: schema.TypeInteger, Required: true},
		},
	}
	tr := replying(openAIReply(t, "User", `{"name":"Jason","age":25}`))
	client := instructor.NewOpenAI(tr)

	out, err := client.Call(context.Background(), userParams("Extract Jason is 25 years old"), instructor.Single(instructor.FromDescriptor(d)))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Jason", "age": float64(25)}, out)
}

func TestCall_DescriptorModel_Invalid(t *testing.T) {
	d := &schema.Descriptor{
		Name: "User",
		Fields: []schema.Field{
			{Name: "name", Type: schema.TypeString, Required: true},
			{Name: "age", Type: schema.TypeInteger, Required: true},
		},
	}
	tr := replying(openAIReply(t, "User", `{"name":"Jason","age":"twenty-five"}`))
	client := instructor.NewOpenAI(tr)

	_, err := client.Call(context.Background(), userParams("Extract"), instructor.Single(instructor.FromDescriptor(d)))
	var ve *instructor.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestExtract_Anthropic(t *testing.T) {
	tr := replying(anthropicReply(t, "UserDetail", map[string]any{"name": "Jason", "age": 25}))
	client := instructor.NewAnthropic(tr)

	params := map[string]any{
		"model":    "claude-3-opus-20240229",
		"messages": []any{map[string]any{"role": "user", "content": "Extract Jason is 25 years old"}},
	}
	user, err := instructor.Extract[models.UserDetail](context.Background(), client, params)
	require.NoError(t, err)
	assert.Equal(t, &models.UserDetail{Name: "Jason", Age: 25}, user)

	assert.Equal(t, []string{"v1/messages"}, tr.paths)
	sent := tr.lastBody(t)
	assert.Equal(t, float64(instructor.DefaultAnthropicMaxTokens), sent["max_tokens"])
	assert.NotContains(t, sent, "tool_choice")
	tool := sent["tools"].([]any)[0].(map[string]any)
	assert.Equal(t, "UserDetail", tool["name"])
	assert.Contains(t, tool, "input_schema")
	assert.NotContains(t, tool, "function")

	_, hasMaxTokens := params["max_tokens"]
	assert.False(t, hasMaxTokens, "caller params must not be modified")
}

func TestCall_Anthropic_KeepsMaxTokens(t *testing.T) {
	tr := replying(anthropicReply(t, "UserDetail", map[string]any{"name": "Jason", "age": 25}))
	client := instructor.NewAnthropic(tr)

	params := userParams("Extract Jason is 25 years old")
	params["max_tokens"] = 4096
	_, err := instructor.Extract[models.UserDetail](context.Background(), client, params)
	require.NoError(t, err)
	assert.Equal(t, float64(4096), tr.lastBody(t)["max_tokens"])
}

// --- Test Single vs Collection Calls ---

func TestExtractMany_PreservesOrder(t *testing.T) {
	tr := replying(openAIReply(t, "UserDetail",
		`{"name":"Jason","age":25}`,
		`{"name":"Ivan","age":28}`,
	))
	client := instructor.NewOpenAI(tr)

	users, err := instructor.ExtractMany[models.UserDetail](context.Background(), client, userParams("Extract Jason is 25 and Ivan is 28"))
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Jason", users[0].Name)
	assert.Equal(t, 25, users[0].Age)
	assert.Equal(t, "Ivan", users[1].Name)
	assert.Equal(t, 28, users[1].Age)
}

func TestCall_CollectionFlagIsFixedByResponseModel(t *testing.T) {
	tests := []struct {
		name      string
		rm        *instructor.ResponseModel
		arguments []string
		check     func(t *testing.T, out any)
	}{
		{
			name:      "collection with one tool call is still a collection",
			rm:        instructor.Many(instructor.For[models.UserDetail]()),
			arguments: []string{`{"name":"Jason","age":25}`},
			check: func(t *testing.T, out any) {
				items, ok := out.([]any)
				require.True(t, ok)
				require.Len(t, items, 1)
				assert.Equal(t, "Jason", items[0].(*models.UserDetail).Name)
			},
		},
		{
			name:      "collection with no tool calls is empty",
			rm:        instructor.Many(instructor.For[models.UserDetail]()),
			arguments: nil,
			check: func(t *testing.T, out any) {
				assert.Equal(t, []any{}, out)
			},
		},
		{
			name:      "single with several tool calls uses the first",
			rm:        instructor.Single(instructor.For[models.UserDetail]()),
			arguments: []string{`{"name":"Jason","age":25}`, `{"name":"Ivan","age":28}`},
			check: func(t *testing.T, out any) {
				user, ok := out.(*models.UserDetail)
				require.True(t, ok)
				assert.Equal(t, "Jason", user.Name)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := instructor.NewOpenAI(replying(openAIReply(t, "UserDetail", tc.arguments...)))
			out, err := client.Call(context.Background(), userParams("Extract"), tc.rm)
			require.NoError(t, err)
			tc.check(t, out)
		})
	}
}

func TestCall_CollectionIsAllOrNothing(t *testing.T) {
	tr := replying(openAIReply(t, "UserDetail",
		`{"name":"Jason","age":25}`,
		`{"age":28}`,
	))
	client := instructor.NewOpenAI(tr)

	_, err := instructor.ExtractMany[models.UserDetail](context.Background(), client, userParams("Extract"))
	var ve *instructor.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 1, ve.Index)
}

func TestCall_SingleWithoutToolCall(t *testing.T) {
	client := instructor.NewOpenAI(replying(openAIReply(t, "UserDetail")))

	_, err := instructor.Extract[models.UserDetail](context.Background(), client, userParams("Extract"))
	assert.ErrorIs(t, err, instructor.ErrValidation)
}

// --- Test Validation Context ---

func TestCall_ValidationContext(t *testing.T) {
	tr := replying(openAIReply(t, "UserDetail", `{"name":"Jason","age":25}`))
	client := instructor.NewOpenAI(tr)

	params := userParams("Answer %<question>s")
	_, err := instructor.Extract[models.UserDetail](context.Background(), client, params,
		instructor.WithValidationContext(map[string]any{"question": "hi"}))
	require.NoError(t, err)

	messages := tr.lastBody(t)["messages"].([]any)
	assert.Equal(t, "Answer hi", messages[0].(map[string]any)["content"])
	assert.Equal(t, "Answer %<question>s", params["messages"].([]any)[0].(map[string]any)["content"], "caller params must not be modified")
}

func TestCall_ValidationContext_OnlyFirstMessage(t *testing.T) {
	tr := replying(openAIReply(t, "UserDetail", `{"name":"Jason","age":25}`))
	client := instructor.NewOpenAI(tr)

	params := map[string]any{
		"model": "gpt-4o",
		"messages": []any{
			map[string]any{"role": "system", "content": "Topic: %{topic}"},
			map[string]any{"role": "user", "content": "Question: %{topic}"},
		},
	}
	_, err := instructor.Extract[models.UserDetail](context.Background(), client, params,
		instructor.WithValidationContext(map[string]any{"topic": "users"}))
	require.NoError(t, err)

	messages := tr.lastBody(t)["messages"].([]any)
	assert.Equal(t, "Topic: users", messages[0].(map[string]any)["content"])
	assert.Equal(t, "Question: %{topic}", messages[1].(map[string]any)["content"])
}

func TestCall_ValidationContext_MissingKey(t *testing.T) {
	tr := replying(openAIReply(t, "UserDetail", `{"name":"Jason","age":25}`))
	client := instructor.NewOpenAI(tr)

	_, err := instructor.Extract[models.UserDetail](context.Background(), client, userParams("Answer %<question>s"),
		instructor.WithValidationContext(map[string]any{"other": "hi"}), instructor.WithMaxRetries(3))
	var te *instructor.TemplatingError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "question", te.Key)
	assert.Equal(t, 0, tr.calls())
}

// --- Test Retries ---

func TestCall_RetryExhaustion(t *testing.T) {
	tests := []struct {
		maxRetries int
		wantCalls  int
	}{
		{maxRetries: 0, wantCalls: 1},
		{maxRetries: 1, wantCalls: 1},
		{maxRetries: 2, wantCalls: 2},
		{maxRetries: 5, wantCalls: 5},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("max_retries=%d", tc.maxRetries), func(t *testing.T) {
			tr := replying(openAIReply(t, "UserDetail", `{"name": "Jason", "age":`))
			client := instructor.NewOpenAI(tr)

			_, err := instructor.Extract[models.UserDetail](context.Background(), client, userParams("Extract"),
				instructor.WithMaxRetries(tc.maxRetries))
			require.Error(t, err)
			assert.Equal(t, tc.wantCalls, tr.calls())

			de, ok := err.(*instructor.DecodeError)
			require.True(t, ok, "expected an unwrapped *DecodeError, got %T", err)
			assert.Equal(t, `{"name": "Jason", "age":`, de.Arguments)
		})
	}
}

func TestCall_RetryRecovers(t *testing.T) {
	good := openAIReply(t, "UserDetail", `{"name":"Jason","age":25}`)
	tr := newRecorder(func(n int, _ []byte) ([]byte, error) {
		switch n {
		case 1:
			return []byte("<html>bad gateway</html>"), nil
		case 2:
			return openAIReply(t, "UserDetail", `{"age":25}`), nil
		default:
			return good, nil
		}
	})
	client := instructor.NewOpenAI(tr)

	user, err := instructor.Extract[models.UserDetail](context.Background(), client, userParams("Extract"),
		instructor.WithMaxRetries(3))
	require.NoError(t, err)
	assert.Equal(t, "Jason", user.Name)
	assert.Equal(t, 3, tr.calls())
}

func TestCall_RetryableKinds(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
		check func(t *testing.T, err error)
	}{
		{
			name:  "malformed body",
			reply: []byte("upstream connect error"),
			check: func(t *testing.T, err error) {
				_, ok := err.(*transport.ParseError)
				assert.True(t, ok, "got %T", err)
			},
		},
		{
			name:  "failed validation",
			reply: []byte(`{"choices":[{"message":{"tool_calls":[{"function":{"name":"UserDetail","arguments":"{\"name\":\"Jason\",\"age\":-3}"}}]}}]}`),
			check: func(t *testing.T, err error) {
				_, ok := err.(*instructor.ValidationError)
				assert.True(t, ok, "got %T", err)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := replying(tc.reply)
			client := instructor.NewOpenAI(tr)

			_, err := instructor.Extract[models.UserDetail](context.Background(), client, userParams("Extract"),
				instructor.WithMaxRetries(3))
			require.Error(t, err)
			assert.True(t, instructor.IsRetryable(err))
			assert.Equal(t, 3, tr.calls())
			tc.check(t, err)
		})
	}
}

func TestCall_NonRetryableErrors(t *testing.T) {
	transportErr := errors.New("connection refused")

	tests := []struct {
		name    string
		client  func(tr transport.Transport) *instructor.Client
		reply   func(t *testing.T) ([]byte, error)
		wantErr func(t *testing.T, err error)
	}{
		{
			name:   "provider error envelope",
			client: func(tr transport.Transport) *instructor.Client { return instructor.NewAnthropic(tr) },
			reply: func(*testing.T) ([]byte, error) {
				return []byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`), nil
			},
			wantErr: func(t *testing.T, err error) {
				var pe *instructor.ProviderError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, "overloaded_error", pe.Type)
				assert.Equal(t, "Overloaded", pe.Message)
				assert.Equal(t, "provider_error: overloaded_error - Overloaded", err.Error())
			},
		},
		{
			name:   "openai error envelope",
			client: func(tr transport.Transport) *instructor.Client { return instructor.NewOpenAI(tr) },
			reply: func(*testing.T) ([]byte, error) {
				return []byte(`{"error":{"type":"invalid_request_error","message":"Unknown model"}}`), nil
			},
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, instructor.ErrProvider)
			},
		},
		{
			name:   "transport failure",
			client: func(tr transport.Transport) *instructor.Client { return instructor.NewOpenAI(tr) },
			reply: func(*testing.T) ([]byte, error) {
				return nil, transportErr
			},
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, transportErr)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := newRecorder(func(int, []byte) ([]byte, error) { return tc.reply(t) })
			client := tc.client(tr)

			_, err := instructor.Extract[models.UserDetail](context.Background(), client, userParams("Extract"),
				instructor.WithMaxRetries(3))
			require.Error(t, err)
			assert.False(t, instructor.IsRetryable(err))
			assert.Equal(t, 1, tr.calls())
			tc.wantErr(t, err)
		})
	}
}

func TestCall_ContextCanceledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := newRecorder(func(int, []byte) ([]byte, error) {
		cancel()
		return []byte(`{"choices":[{"message":{"tool_calls":[{"function":{"name":"UserDetail","arguments":"nope"}}]}}]}`), nil
	})
	client := instructor.NewOpenAI(tr)

	_, err := instructor.Extract[models.UserDetail](ctx, client, userParams("Extract"), instructor.WithMaxRetries(5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, tr.calls())
}

// --- Test Configuration Errors ---

type badInstructions struct {
	Name string `json:"name"`
}

func (badInstructions) Instructions() any { return 42 }

func TestCall_NonTextualInstructions(t *testing.T) {
	tr := replying(openAIReply(t, "badInstructions", `{"name":"x"}`))
	client := instructor.NewOpenAI(tr)

	_, err := instructor.Extract[badInstructions](context.Background(), client, userParams("Extract"), instructor.WithMaxRetries(3))
	assert.ErrorIs(t, err, instructor.ErrConfiguration)
	assert.Equal(t, 0, tr.calls())
}

func TestCall_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params any
	}{
		{name: "nil", params: nil},
		{name: "array", params: []any{1, 2}},
		{name: "raw non-object", params: json.RawMessage(`"hello"`)},
		{name: "raw invalid", params: []byte(`{"model":`)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := replying(nil)
			client := instructor.NewOpenAI(tr)

			_, err := client.Call(context.Background(), tc.params, instructor.Single(instructor.For[models.UserDetail]()))
			assert.ErrorIs(t, err, instructor.ErrConfiguration)
			assert.Equal(t, 0, tr.calls())
		})
	}
}

// --- Test Pass-Through ---

func TestCall_PassThrough(t *testing.T) {
	reply := []byte(`{"id":"chatcmpl-1","choices":[{"message":{"role":"assistant","content":"Hello"}}]}`)
	tr := replying(reply)
	client := instructor.NewOpenAI(tr)

	raw := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"Say %<x>s"}]}`)
	out, err := client.Call(context.Background(), raw, nil,
		instructor.WithValidationContext(map[string]any{"x": "hi"}))
	require.NoError(t, err)

	assert.Equal(t, json.RawMessage(reply), out)
	require.Equal(t, 1, tr.calls())
	assert.JSONEq(t, string(raw), string(tr.bodies[0]), "pass-through must send params untouched")
}

// --- Test Modes ---

func TestCall_ToolChoiceByMode(t *testing.T) {
	tests := []struct {
		mode instructor.Mode
		want any
	}{
		{mode: instructor.ModeFunction, want: map[string]any{"type": "function", "function": map[string]any{"name": "UserDetail"}}},
		{mode: instructor.ModeAuto, want: "auto"},
		{mode: instructor.ModeRequired, want: "required"},
		{mode: instructor.ModeNone, want: "none"},
	}

	for _, tc := range tests {
		t.Run(tc.mode.String(), func(t *testing.T) {
			tr := replying(openAIReply(t, "UserDetail", `{"name":"Jason","age":25}`))
			client := instructor.NewOpenAI(tr, instructor.WithMode(tc.mode))
			assert.Equal(t, tc.mode, client.Mode())

			_, err := instructor.Extract[models.UserDetail](context.Background(), client, userParams("Extract"))
			require.NoError(t, err)
			assert.Equal(t, tc.want, tr.lastBody(t)["tool_choice"])
		})
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range instructor.Modes {
		got, err := instructor.ParseMode(" " + string(m) + " ")
		require.NoError(t, err)
		assert.Equal(t, m, got)
		assert.True(t, got.Valid())
	}

	got, err := instructor.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, instructor.ModeFunction, got)

	_, err = instructor.ParseMode("parallel_tools")
	assert.ErrorIs(t, err, instructor.ErrConfiguration)
	assert.False(t, instructor.Mode("json").Valid())
}

// --- Test Schema Validation Option ---

func TestCall_WithSchemaValidation(t *testing.T) {
	type Reading struct {
		Unit  string  `json:"unit" jsonschema:"enum=celsius|fahrenheit"`
		Value float64 `json:"value" jsonschema:"required"`
	}
	reply := openAIReply(t, "Reading", `{"unit":"kelvin","value":300}`)

	// Without schema validation the enum is only advisory.
	out, err := instructor.Extract[Reading](context.Background(), instructor.NewOpenAI(replying(reply)), userParams("Extract"))
	require.NoError(t, err)
	assert.Equal(t, "kelvin", out.Unit)

	_, err = instructor.Extract[Reading](context.Background(),
		instructor.NewOpenAI(replying(reply), instructor.WithSchemaValidation()), userParams("Extract"))
	assert.ErrorIs(t, err, instructor.ErrValidation)
}

// --- Test Required Fields ---

func TestCall_MissingRequiredFieldIsRetried(t *testing.T) {
	type Person struct {
		Name string `json:"name" jsonschema:"required"`
		Age  int    `json:"age"`
	}
	tr := replying(openAIReply(t, "Person", `{"age":3}`))

	_, err := instructor.Extract[Person](context.Background(), instructor.NewOpenAI(tr), userParams("Extract"), instructor.WithMaxRetries(3))
	var ve *instructor.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "Person.name failed required")
	assert.Equal(t, 3, tr.calls())
}

func TestCall_ZeroValueSatisfiesRequired(t *testing.T) {
	tr := replying(openAIReply(t, "UserDetail", `{"name":"Baby","age":0}`))

	user, err := instructor.Extract[models.UserDetail](context.Background(), instructor.NewOpenAI(tr), userParams("Extract"), instructor.WithMaxRetries(3))
	require.NoError(t, err)
	assert.Equal(t, &models.UserDetail{Name: "Baby", Age: 0}, user)
	assert.Equal(t, 1, tr.calls())
}

// --- Test Concurrency ---

func TestCall_ConcurrentCallsKeepTheirOwnCollectionFlag(t *testing.T) {
	reply := openAIReply(t, "UserDetail", `{"name":"Jason","age":25}`)
	client := instructor.NewOpenAI(replying(reply))

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(many bool) {
			defer wg.Done()
			rm := instructor.Single(instructor.For[models.UserDetail]())
			if many {
				rm = instructor.Many(instructor.For[models.UserDetail]())
			}
			out, err := client.Call(context.Background(), userParams("Extract"), rm)
			if err != nil {
				errs <- err
				return
			}
			switch v := out.(type) {
			case []any:
				if !many || len(v) != 1 {
					errs <- fmt.Errorf("collection result for single=%v", !many)
				}
			case *models.UserDetail:
				if many {
					errs <- errors.New("single result for a collection call")
				}
			default:
				errs <- fmt.Errorf("unexpected result %T", out)
			}
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
