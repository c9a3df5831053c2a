package backend

import (
	"testing"
	"time"

	"party-request-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func mustEnvelope(t *testing.T, body string) *envelope {
	t.Helper()
	env, err := decodeEnvelope([]byte(body))
	require.NoError(t, err)
	return env
}

func TestDecodeEnvelopeStatusAndMessage(t *testing.T) {
	env := mustEnvelope(t, `{"status":"success","data":{"message":"Login successful"}}`)
	assert.False(t, env.Failed)
	assert.Equal(t, "Login successful", env.Message)

	env = mustEnvelope(t, `{"status":false,"message":"Invalid passcode"}`)
	assert.True(t, env.Failed)
	assert.Equal(t, "Invalid passcode", env.Message)

	env = mustEnvelope(t, `{"detail":"Authentication credentials were not provided."}`)
	assert.Equal(t, "Authentication credentials were not provided.", env.Message)

	env = mustEnvelope(t, ``)
	assert.False(t, env.Failed)
}

func TestDecodeEnvelopeBadDataMessageFallsBack(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	env := mustEnvelope(t, `{"status":"failed","message":"Hub closed","data":{"message":42}}`)
	assert.True(t, env.Failed)
	assert.Equal(t, "Hub closed", env.Message)
	assert.Equal(t, 1, logs.FilterMessageSnippet("not decodable").Len())
}

func TestNormalizeLoginNestedUser(t *testing.T) {
	env := mustEnvelope(t, `{"status":"success","data":{"message":"ok","user":{"id":42,"username":"ada","token":"abc","user_type":"guest","phone_number":"0801"}}}`)

	result, err := normalizeLogin(env, models.RoleAttendee)
	require.NoError(t, err)
	assert.Equal(t, "42", result.User.Id)
	assert.Equal(t, "ada", result.User.Username)
	assert.Equal(t, "abc", result.Token)
	assert.Equal(t, models.UserTypeGuest, result.User.UserType)
	assert.Equal(t, models.RoleAttendee, result.User.Role)
	assert.Equal(t, "0801", result.User.Phone)
}

func TestNormalizeLoginFlatCamelCase(t *testing.T) {
	env := mustEnvelope(t, `{"status":"success","data":{"userId":"u-7","userName":"deejay","auth_token":"t-1","role":"DJ"}}`)

	result, err := normalizeLogin(env, models.RoleAttendee)
	require.NoError(t, err)
	assert.Equal(t, "u-7", result.User.Id)
	assert.Equal(t, "deejay", result.User.Username)
	assert.Equal(t, "t-1", result.Token)
	assert.Equal(t, models.RoleDJ, result.User.Role)
	assert.Equal(t, models.UserTypeMember, result.User.UserType)
}

func TestNormalizeLoginMissingToken(t *testing.T) {
	env := mustEnvelope(t, `{"status":"success","data":{"user":{"id":1}}}`)
	_, err := normalizeLogin(env, models.RoleAttendee)
	assert.Error(t, err)
}

func TestNormalizePartyMixedNaming(t *testing.T) {
	env := mustEnvelope(t, `{"status":"success","data":{"hub":{
		"hub_id": 9, "hub_name": "Rooftop", "dj_name": "Kay", "djId": "d1",
		"location": "Lekki", "code": 123456, "minRequestPrice": "500",
		"active_until": "2025-06-01T23:00:00Z", "end_date": "2025-06-01",
		"isActive": "true", "total_earnings": 1500,
		"song_list": [{"song_id": 3, "song_title": "Essence", "artist": "Wizkid", "amount": "700", "requestedBy": "ada", "status": "accepted", "albumArt": "https://img/1.png"}]
	}}}`)

	p, err := normalizeParty(env)
	require.NoError(t, err)
	assert.Equal(t, "9", p.Id)
	assert.Equal(t, "Rooftop", p.Name)
	assert.Equal(t, "Kay", p.Dj)
	assert.Equal(t, "d1", p.DjId)
	assert.Equal(t, "Lekki", p.Venue)
	assert.Equal(t, "123456", p.Passcode)
	assert.True(t, p.MinRequestPrice.Equal(decimal.NewFromInt(500)))
	assert.True(t, p.Earnings.Equal(decimal.NewFromInt(1500)))
	assert.True(t, p.IsActive)
	assert.Equal(t, time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC), p.ActiveUntil)
	require.Len(t, p.Songs, 1)
	assert.Equal(t, models.SongPlaying, p.Songs[0].Status)
	assert.Equal(t, "Essence", p.Songs[0].Title)
	assert.True(t, p.Songs[0].Price.Equal(decimal.NewFromInt(700)))
	assert.Equal(t, "https://img/1.png", p.Songs[0].AlbumArt)
}

func TestNormalizePartyClosedStatus(t *testing.T) {
	env := mustEnvelope(t, `{"data":{"id":"p1","name":"x","status":"closed"}}`)
	p, err := normalizeParty(env)
	require.NoError(t, err)
	assert.False(t, p.IsActive)
}

func TestNormalizePartiesListShapes(t *testing.T) {
	byKey := mustEnvelope(t, `{"data":{"hubs":[{"id":1,"name":"a"},{"id":2,"name":"b"}]}}`)
	parties, err := normalizeParties(byKey)
	require.NoError(t, err)
	assert.Len(t, parties, 2)

	bare := mustEnvelope(t, `{"data":[{"id":1,"name":"a"}]}`)
	parties, err = normalizeParties(bare)
	require.NoError(t, err)
	assert.Len(t, parties, 1)

	empty := mustEnvelope(t, `{"data":{"message":"no hubs"}}`)
	parties, err = normalizeParties(empty)
	require.NoError(t, err)
	assert.Empty(t, parties)
}

func TestNormalizeNowPlaying(t *testing.T) {
	none := mustEnvelope(t, `{"data":{"now_playing":null}}`)
	song, err := normalizeNowPlaying(none)
	require.NoError(t, err)
	assert.Nil(t, song)

	some := mustEnvelope(t, `{"data":{"nowPlaying":{"id":"s1","title":"Ye","status":"pending"}}}`)
	song, err = normalizeNowPlaying(some)
	require.NoError(t, err)
	require.NotNil(t, song)
	assert.Equal(t, models.SongPlaying, song.Status)
}

func TestNormalizeBalanceVariants(t *testing.T) {
	for _, body := range []string{
		`{"data":{"balance":1000}}`,
		`{"data":{"wallet_balance":"1,000"}}`,
		`{"data":{"walletBalance":"1000.00"}}`,
	} {
		balance, err := normalizeBalance(mustEnvelope(t, body))
		require.NoError(t, err, body)
		assert.True(t, balance.Equal(decimal.NewFromInt(1000)), body)
	}

	_, err := normalizeBalance(mustEnvelope(t, `{"data":{"message":"ok"}}`))
	assert.Error(t, err)
}

func TestNormalizeTransactionsSignsByKind(t *testing.T) {
	env := mustEnvelope(t, `{"data":{"transactions":[
		{"id":1,"amount":"500","type":"credit","status":"success","created_at":"2025-06-01 10:00:00"},
		{"transaction_id":"t2","amount":300,"transaction_type":"song_request","status":"successful"},
		{"reference":"ref-3","amount":-200,"kind":"withdrawal","status":"processing"},
		{"id":4,"amount":100,"type":"reversal","status":"reversed"}
	]}}`)

	txs, err := normalizeTransactions(env)
	require.NoError(t, err)
	require.Len(t, txs, 4)

	assert.Equal(t, models.KindDeposit, txs[0].Kind)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, models.StatusCompleted, txs[0].Status)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), txs[0].Timestamp)

	assert.Equal(t, models.KindPayment, txs[1].Kind)
	assert.True(t, txs[1].Amount.Equal(decimal.NewFromInt(-300)))

	assert.Equal(t, "ref-3", txs[2].Id)
	assert.Equal(t, models.KindWithdrawal, txs[2].Kind)
	assert.True(t, txs[2].Amount.Equal(decimal.NewFromInt(-200)))
	assert.Equal(t, models.StatusProcessing, txs[2].Status)

	assert.Equal(t, models.KindRefund, txs[3].Kind)
	assert.Equal(t, models.StatusFailed, txs[3].Status)
}

func TestNormalizeVerificationAndBanks(t *testing.T) {
	v, err := normalizeVerification(mustEnvelope(t, `{"data":{"accountName":"ADA OBI"}}`), "0123456789", "058")
	require.NoError(t, err)
	assert.Equal(t, "ADA OBI", v.AccountName)
	assert.Equal(t, "0123456789", v.AccountNumber)
	assert.Equal(t, "058", v.BankCode)

	_, err = normalizeVerification(mustEnvelope(t, `{"data":{}}`), "1", "2")
	assert.Error(t, err)

	banks, err := normalizeBanks(mustEnvelope(t, `{"data":{"banks":[{"name":"GTBank","code":"058"},{"bank_name":"Access","bank_code":44}]}}`))
	require.NoError(t, err)
	assert.Equal(t, []models.Bank{{Name: "GTBank", Code: "058"}, {Name: "Access", Code: "44"}}, banks)
}

func TestNormalizeTransferDefaultsToProcessing(t *testing.T) {
	result, err := normalizeTransfer(mustEnvelope(t, `{"data":{"message":"queued"}}`), "local-ref")
	require.NoError(t, err)
	assert.Equal(t, "local-ref", result.Reference)
	assert.Equal(t, models.StatusProcessing, result.Status)
	assert.Equal(t, "queued", result.Message)
}
