package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	gotIn  *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.gotIn = in
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("/gigachat-bot/auth-key"), Value: strPtr("c2VjcmV0"), Type: types.ParameterTypeSecureString,
	}}}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /gigachat-bot/auth-key ")
	require.NoError(t, err)
	require.Equal(t, "c2VjcmV0", v)
	require.Equal(t, "/gigachat-bot/auth-key", *api.gotIn.Name)
	require.True(t, *api.gotIn.WithDecryption)
}

func TestGetParameter_MissingValue(t *testing.T) {
	client, err := New(&fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p")}}})
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "missing value")
}

func TestGetParameter_APIError(t *testing.T) {
	client, err := New(&fakeAPI{getErr: errors.New("boom")})
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_EmptyName(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "name is required")
}

type fakeGetter struct {
	val   string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(context.Context, string) (string, error) {
	f.calls++
	return f.val, f.err
}

func TestResolveAuthKey(t *testing.T) {
	ctx := context.Background()

	g := &fakeGetter{val: "from-ssm"}
	key, err := ResolveAuthKey(ctx, "from-config", g, "/p")
	require.NoError(t, err)
	require.Equal(t, "from-config", key)
	require.Zero(t, g.calls, "a configured key wins")

	key, err = ResolveAuthKey(ctx, "", g, "/p")
	require.NoError(t, err)
	require.Equal(t, "from-ssm", key)

	_, err = ResolveAuthKey(ctx, "", &fakeGetter{val: "  "}, "/p")
	require.ErrorContains(t, err, "empty")

	_, err = ResolveAuthKey(ctx, "", nil, "/p")
	require.Error(t, err)
}
