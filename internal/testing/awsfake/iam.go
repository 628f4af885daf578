package awsfake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// IAMServer implements an IAM simulator for users, their inline policies
// and their access keys.
type IAMServer struct {
	ops

	mu       sync.Mutex
	seq      idSeq
	users    map[string]*types.User
	policies map[string]map[string]string
	keys     map[string][]types.AccessKey
}

func NewIAMServer() *IAMServer {
	srv := &IAMServer{}
	srv.Reset()
	return srv
}

func (i *IAMServer) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.resetOps()
	i.seq = idSeq{}
	i.users = make(map[string]*types.User)
	i.policies = make(map[string]map[string]string)
	i.keys = make(map[string][]types.AccessKey)
}

// AddUser registers a user directly, bypassing CreateUser.
func (i *IAMServer) AddUser(name string, tags ...types.Tag) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.users[name] = &types.User{UserName: aws.String(name), Tags: tags}
	i.policies[name] = map[string]string{}
}

// User returns a copy of the user called name.
func (i *IAMServer) User(name string) (types.User, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	u, ok := i.users[name]
	if !ok {
		return types.User{}, false
	}
	return *u, true
}

// Policy returns the inline policy document policyName of user.
func (i *IAMServer) Policy(user, policyName string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	doc, ok := i.policies[user][policyName]
	return doc, ok
}

// AccessKeys returns how many access keys user holds.
func (i *IAMServer) AccessKeys(user string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.keys[user])
}

func (i *IAMServer) CreateUser(
	ctx context.Context,
	input *iam.CreateUserInput,
	opts ...func(*iam.Options),
) (*iam.CreateUserOutput, error) {
	if err := i.enter("CreateUser"); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	name := aws.ToString(input.UserName)
	if _, exists := i.users[name]; exists {
		return nil, &types.EntityAlreadyExistsException{
			Message: aws.String(fmt.Sprintf("user %s", name)),
		}
	}
	createDate := time.Now()
	path := aws.ToString(input.Path)
	if path == "" {
		path = "/"
	}
	i.users[name] = &types.User{
		UserName:   aws.String(name),
		UserId:     aws.String(i.seq.next("AIDA")),
		Arn:        aws.String(fmt.Sprintf("arn:aws:iam::%s:user%s%s", fakeAccount, path, name)),
		Path:       aws.String(path),
		CreateDate: &createDate,
		Tags:       input.Tags,
	}
	i.policies[name] = map[string]string{}
	cp := *i.users[name]
	return &iam.CreateUserOutput{User: &cp}, nil
}

func (i *IAMServer) GetUser(
	ctx context.Context,
	input *iam.GetUserInput,
	opts ...func(*iam.Options),
) (*iam.GetUserOutput, error) {
	if err := i.enter("GetUser"); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	u, ok := i.users[aws.ToString(input.UserName)]
	if !ok {
		return nil, &types.NoSuchEntityException{Message: aws.String("user " + aws.ToString(input.UserName))}
	}
	cp := *u
	return &iam.GetUserOutput{User: &cp}, nil
}

func (i *IAMServer) PutUserPolicy(
	ctx context.Context,
	input *iam.PutUserPolicyInput,
	opts ...func(*iam.Options),
) (*iam.PutUserPolicyOutput, error) {
	if err := i.enter("PutUserPolicy"); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	name := aws.ToString(input.UserName)
	if _, ok := i.users[name]; !ok {
		return nil, &types.NoSuchEntityException{Message: aws.String("user " + name)}
	}
	i.policies[name][aws.ToString(input.PolicyName)] = aws.ToString(input.PolicyDocument)
	return &iam.PutUserPolicyOutput{}, nil
}

func (i *IAMServer) DeleteUserPolicy(
	ctx context.Context,
	input *iam.DeleteUserPolicyInput,
	opts ...func(*iam.Options),
) (*iam.DeleteUserPolicyOutput, error) {
	if err := i.enter("DeleteUserPolicy"); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	name := aws.ToString(input.UserName)
	if _, ok := i.policies[name][aws.ToString(input.PolicyName)]; !ok {
		return nil, &types.NoSuchEntityException{Message: aws.String("policy " + aws.ToString(input.PolicyName))}
	}
	delete(i.policies[name], aws.ToString(input.PolicyName))
	return &iam.DeleteUserPolicyOutput{}, nil
}

func (i *IAMServer) ListUserPolicies(
	ctx context.Context,
	input *iam.ListUserPoliciesInput,
	opts ...func(*iam.Options),
) (*iam.ListUserPoliciesOutput, error) {
	if err := i.enter("ListUserPolicies"); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	name := aws.ToString(input.UserName)
	if _, ok := i.users[name]; !ok {
		return nil, &types.NoSuchEntityException{Message: aws.String("user " + name)}
	}
	return &iam.ListUserPoliciesOutput{PolicyNames: sortedKeys(i.policies[name])}, nil
}

func (i *IAMServer) CreateAccessKey(
	ctx context.Context,
	input *iam.CreateAccessKeyInput,
	opts ...func(*iam.Options),
) (*iam.CreateAccessKeyOutput, error) {
	if err := i.enter("CreateAccessKey"); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	name := aws.ToString(input.UserName)
	if _, ok := i.users[name]; !ok {
		return nil, &types.NoSuchEntityException{Message: aws.String("user " + name)}
	}
	key := types.AccessKey{
		AccessKeyId:     aws.String(i.seq.next("AKIA")),
		SecretAccessKey: aws.String(i.seq.next("secret")),
		UserName:        aws.String(name),
		Status:          types.StatusTypeActive,
	}
	i.keys[name] = append(i.keys[name], key)
	return &iam.CreateAccessKeyOutput{AccessKey: &key}, nil
}

func (i *IAMServer) ListAccessKeys(
	ctx context.Context,
	input *iam.ListAccessKeysInput,
	opts ...func(*iam.Options),
) (*iam.ListAccessKeysOutput, error) {
	if err := i.enter("ListAccessKeys"); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	name := aws.ToString(input.UserName)
	if _, ok := i.users[name]; !ok {
		return nil, &types.NoSuchEntityException{Message: aws.String("user " + name)}
	}
	out := &iam.ListAccessKeysOutput{}
	for _, k := range i.keys[name] {
		out.AccessKeyMetadata = append(out.AccessKeyMetadata, types.AccessKeyMetadata{
			AccessKeyId: k.AccessKeyId,
			UserName:    k.UserName,
			Status:      k.Status,
		})
	}
	return out, nil
}

func (i *IAMServer) DeleteAccessKey(
	ctx context.Context,
	input *iam.DeleteAccessKeyInput,
	opts ...func(*iam.Options),
) (*iam.DeleteAccessKeyOutput, error) {
	if err := i.enter("DeleteAccessKey"); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	name := aws.ToString(input.UserName)
	keys := i.keys[name]
	for idx, k := range keys {
		if aws.ToString(k.AccessKeyId) == aws.ToString(input.AccessKeyId) {
			i.keys[name] = append(keys[:idx:idx], keys[idx+1:]...)
			return &iam.DeleteAccessKeyOutput{}, nil
		}
	}
	return nil, &types.NoSuchEntityException{Message: aws.String("access key " + aws.ToString(input.AccessKeyId))}
}

func (i *IAMServer) DeleteUser(
	ctx context.Context,
	input *iam.DeleteUserInput,
	opts ...func(*iam.Options),
) (*iam.DeleteUserOutput, error) {
	if err := i.enter("DeleteUser"); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	name := aws.ToString(input.UserName)
	if _, ok := i.users[name]; !ok {
		return nil, &types.NoSuchEntityException{Message: aws.String("user " + name)}
	}
	if len(i.keys[name]) > 0 || len(i.policies[name]) > 0 {
		return nil, &types.DeleteConflictException{Message: aws.String("user " + name + " still has keys or policies")}
	}
	delete(i.users, name)
	delete(i.policies, name)
	delete(i.keys, name)
	return &iam.DeleteUserOutput{}, nil
}
