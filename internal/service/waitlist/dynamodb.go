package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoDBStore.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoDBClientConfig selects the region, shared profile and an optional
// endpoint override such as DynamoDB Local.
type DynamoDBClientConfig struct {
	Region   string
	Profile  string
	Endpoint string
}

// NewDynamoDBClient loads the default AWS configuration chain.
func NewDynamoDBClient(ctx context.Context, cfg DynamoDBClientConfig) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// dynamoSignup is the item layout. email is the partition key.
type dynamoSignup struct {
	Email       string    `dynamodbav:"email"`
	ID          string    `dynamodbav:"id"`
	Consent     bool      `dynamodbav:"consent"`
	Name        string    `dynamodbav:"name"`
	UseCase     string    `dynamodbav:"use_case"`
	SubmittedAt time.Time `dynamodbav:"submitted_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at"`
}

func (d dynamoSignup) signup() *Signup {
	return &Signup{
		ID:          d.ID,
		Email:       d.Email,
		Consent:     d.Consent,
		Name:        d.Name,
		UseCase:     d.UseCase,
		SubmittedAt: d.SubmittedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// DynamoDBStore implements Store on a DynamoDB table keyed by email.
// Uniqueness comes from conditional writes.
type DynamoDBStore struct {
	client DynamoDBAPI
	table  string
}

var _ Store = (*DynamoDBStore)(nil)

// NewDynamoDBStore creates a store on table. An empty table selects
// DefaultTable.
func NewDynamoDBStore(client DynamoDBAPI, table string) *DynamoDBStore {
	if table == "" {
		table = DefaultTable
	}
	return &DynamoDBStore{client: client, table: table}
}

func emailKey(email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"email": &types.AttributeValueMemberS{Value: email},
	}
}

func (s *DynamoDBStore) Get(ctx context.Context, email string) (*Signup, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            emailKey(email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, mapDynamoError(err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var item dynamoSignup
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal signup: %w", err)
	}
	return item.signup(), nil
}

func (s *DynamoDBStore) Insert(ctx context.Context, signup *Signup) error {
	item, err := attributevalue.MarshalMap(dynamoSignup{
		Email:       signup.Email,
		ID:          signup.ID,
		Consent:     signup.Consent,
		Name:        signup.Name,
		UseCase:     signup.UseCase,
		SubmittedAt: signup.SubmittedAt,
		UpdatedAt:   signup.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal signup: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(email)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrDuplicate
		}
		return mapDynamoError(err)
	}
	return nil
}

func (s *DynamoDBStore) Update(ctx context.Context, email string, params UpdateParams) (*Signup, error) {
	updatedAt, err := attributevalue.Marshal(params.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("marshal updated_at: %w", err)
	}

	sets := []string{"updated_at = :updated_at"}
	values := map[string]types.AttributeValue{":updated_at": updatedAt}
	names := map[string]string{}
	if params.Name != nil {
		// name is a DynamoDB reserved word.
		sets = append(sets, "#name = :name")
		names["#name"] = "name"
		values[":name"] = &types.AttributeValueMemberS{Value: *params.Name}
	}
	if params.UseCase != nil {
		sets = append(sets, "use_case = :use_case")
		values[":use_case"] = &types.AttributeValueMemberS{Value: *params.UseCase}
	}

	in := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       emailKey(email),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(email)"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}

	out, err := s.client.UpdateItem(ctx, in)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, mapDynamoError(err)
	}

	var item dynamoSignup
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, fmt.Errorf("unmarshal signup: %w", err)
	}
	return item.signup(), nil
}

func mapDynamoError(err error) error {
	var (
		txConflict *types.TransactionConflictException
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
	)
	switch {
	case errors.As(err, &txConflict), errors.As(err, &throughput), errors.As(err, &limit):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}
