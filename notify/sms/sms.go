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

// Package sms delivers notifications as text messages published through
// Amazon SNS.
package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/alertcore/alertcore/config"
	"github.com/alertcore/alertcore/notify"
)

// SMS messages are capped at 1600 characters by SNS.
const maxMessageLength = 1600

const (
	attrSMSType  = "AWS.SNS.SMS.SMSType"
	attrSenderID = "AWS.SNS.SMS.SenderID"
)

// throttlingCodes are client faults that clear up on their own.
var throttlingCodes = []string{"Throttling", "ThrottlingException", "ThrottledException", "KMSThrottling"}

// Publisher is the subset of the SNS client the channel uses.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMS implements a notify.Channel publishing to phone numbers.
type SMS struct {
	id     string
	conf   *config.SMSConfig
	client Publisher
	logger *slog.Logger
}

// New returns an SMS channel with an SNS client built from conf. Settings
// missing from conf are taken from the default AWS credential chain.
func New(ctx context.Context, id string, conf *config.SMSConfig, l *slog.Logger) (*SMS, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if conf.Region != "" {
		opts = append(opts, awsconfig.WithRegion(conf.Region))
	}
	if conf.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(conf.Profile))
	}
	if conf.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKey, string(conf.SecretKey), ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}
	// We will always need a region to be set by either the local config or the environment.
	if awsCfg.Region == "" {
		return nil, errors.New("region not configured in sms_config.region or in default credentials chain")
	}
	if conf.RoleARN != "" {
		awsCfg.Credentials = aws.NewCredentialsCache(
			stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), conf.RoleARN),
		)
	}
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
		// Retries are driven by the router.
		o.RetryMaxAttempts = 1
	})
	return NewWithClient(id, conf, client, l), nil
}

// NewWithClient returns an SMS channel publishing through client.
func NewWithClient(id string, conf *config.SMSConfig, client Publisher, l *slog.Logger) *SMS {
	return &SMS{id: id, conf: conf, client: client, logger: l}
}

// ID implements notify.Channel.
func (n *SMS) ID() string { return n.id }

// Kind implements notify.Channel.
func (n *SMS) Kind() notify.Kind { return notify.KindSMS }

// Notify publishes one message per configured phone number. Delivery fails
// if any number fails.
func (n *SMS) Notify(ctx context.Context, msg *notify.Message) (bool, error) {
	text := msg.Title
	if s := msg.Summary(); s != msg.Title {
		text += "\n" + s
	}
	text, truncated := notify.Truncate(text, maxMessageLength)
	if truncated {
		n.logger.Debug("Truncated SMS message", "channel", n.id, "alert", msg)
	}

	attrs := map[string]snstypes.MessageAttributeValue{
		attrSMSType: {DataType: aws.String("String"), StringValue: aws.String(n.conf.SMSType)},
	}
	if n.conf.SenderID != "" {
		attrs[attrSenderID] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(n.conf.SenderID)}
	}

	var (
		errs  []error
		retry bool
	)
	for _, number := range n.conf.PhoneNumbers {
		out, err := n.client.Publish(ctx, &sns.PublishInput{
			PhoneNumber:       aws.String(number),
			Message:           aws.String(text),
			MessageAttributes: attrs,
		})
		if err != nil {
			r, err := checkErr(err)
			retry = retry || r
			errs = append(errs, fmt.Errorf("publish to %s: %w", number, err))
			continue
		}
		n.logger.Debug("SMS published", "channel", n.id, "alert", msg, "message_id", aws.ToString(out.MessageId))
	}
	if len(errs) > 0 {
		return retry, errors.Join(errs...)
	}
	return false, nil
}

// checkErr reports whether a failed publish may succeed later. Client
// faults other than throttling are permanent.
func checkErr(err error) (bool, error) {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return true, err
		}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorFault() == smithy.FaultServer || slices.Contains(throttlingCodes, apiErr.ErrorCode()) {
			return true, err
		}
		return false, err
	}
	return true, err
}
