// Copyright 2026 Prometheus Team
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sms

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"
	"github.com/prometheus/common/model"
	"github.com/prometheus/common/promslog"
	"github.com/stretchr/testify/require"

	"github.com/alertcore/alertcore/config"
	"github.com/alertcore/alertcore/notify"
	"github.com/alertcore/alertcore/types"
)

type fakePublisher struct {
	mtx    sync.Mutex
	inputs []*sns.PublishInput
	errs   map[string]error
}

func (f *fakePublisher) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if err := f.errs[aws.ToString(in.PhoneNumber)]; err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func testConfig() *config.SMSConfig {
	return &config.SMSConfig{
		Region:       "eu-west-1",
		PhoneNumbers: []string{"+4915112345678", "+15555550100"},
		SenderID:     "ALERTS",
		SMSType:      "Transactional",
	}
}

func testMessage() *notify.Message {
	return &notify.Message{
		Fingerprint: model.Fingerprint(7),
		AlertName:   "NodeDown",
		Status:      types.StatusFiring,
		Severity:    types.SeverityCritical,
		Annotations: map[string]string{"summary": "node-3 unreachable"},
		Title:       "[FIRING] CRITICAL NodeDown",
	}
}

func TestSMSNotify(t *testing.T) {
	pub := &fakePublisher{}
	n := NewWithClient("pager-sms", testConfig(), pub, promslog.NewNopLogger())
	require.Equal(t, "pager-sms", n.ID())
	require.Equal(t, notify.KindSMS, n.Kind())

	retry, err := n.Notify(context.Background(), testMessage())
	require.NoError(t, err)
	require.False(t, retry)

	require.Len(t, pub.inputs, 2)
	in := pub.inputs[0]
	require.Equal(t, "+4915112345678", aws.ToString(in.PhoneNumber))
	require.Equal(t, "[FIRING] CRITICAL NodeDown\nnode-3 unreachable", aws.ToString(in.Message))
	require.Equal(t, "Transactional", aws.ToString(in.MessageAttributes[attrSMSType].StringValue))
	require.Equal(t, "ALERTS", aws.ToString(in.MessageAttributes[attrSenderID].StringValue))
	require.Equal(t, "+15555550100", aws.ToString(pub.inputs[1].PhoneNumber))
}

func TestSMSTruncatesLongMessages(t *testing.T) {
	pub := &fakePublisher{}
	conf := testConfig()
	conf.PhoneNumbers = conf.PhoneNumbers[:1]
	n := NewWithClient("pager-sms", conf, pub, promslog.NewNopLogger())

	msg := testMessage()
	msg.Annotations["summary"] = strings.Repeat("x", 2*maxMessageLength)
	_, err := n.Notify(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, []rune(aws.ToString(pub.inputs[0].Message)), maxMessageLength)
}

func TestSMSPartialFailure(t *testing.T) {
	pub := &fakePublisher{errs: map[string]error{
		"+15555550100": &smithy.GenericAPIError{Code: "InvalidParameter", Message: "bad number", Fault: smithy.FaultClient},
	}}
	n := NewWithClient("pager-sms", testConfig(), pub, promslog.NewNopLogger())

	retry, err := n.Notify(context.Background(), testMessage())
	require.Error(t, err)
	require.ErrorContains(t, err, "publish to +15555550100")
	require.False(t, retry)
	require.Len(t, pub.inputs, 1)
}

func TestCheckErr(t *testing.T) {
	for _, tc := range []struct {
		name  string
		err   error
		retry bool
	}{
		{"server fault", &smithy.GenericAPIError{Code: "InternalError", Fault: smithy.FaultServer}, true},
		{"throttled", &smithy.GenericAPIError{Code: "Throttling", Fault: smithy.FaultClient}, true},
		{"invalid parameter", &smithy.GenericAPIError{Code: "InvalidParameter", Fault: smithy.FaultClient}, false},
		{"auth", &smithy.GenericAPIError{Code: "AuthorizationError", Fault: smithy.FaultClient}, false},
		{"transport", errors.New("dial tcp: connection refused"), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			retry, err := checkErr(tc.err)
			require.Equal(t, tc.err, err)
			require.Equal(t, tc.retry, retry)
		})
	}
}

func TestNewRequiresRegion(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")

	conf := testConfig()
	conf.Region = ""
	_, err := New(context.Background(), "pager-sms", conf, promslog.NewNopLogger())
	require.ErrorContains(t, err, "region not configured")

	conf.Region = "us-east-1"
	conf.AccessKey = "AKIDEXAMPLE"
	conf.SecretKey = "secret"
	conf.Endpoint = "http://127.0.0.1:4566"
	n, err := New(context.Background(), "pager-sms", conf, promslog.NewNopLogger())
	require.NoError(t, err)
	require.IsType(t, &sns.Client{}, n.client)
}
