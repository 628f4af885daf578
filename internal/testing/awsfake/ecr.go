package awsfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
)

const fakeAccount = "123456789012"

// ECRServer implements an ECR simulator holding repositories and tags.
type ECRServer struct {
	ops

	mu     sync.Mutex
	region string
	repos  map[string]*types.Repository
	tags   map[string][]types.Tag
}

func NewECRServer() *ECRServer {
	srv := &ECRServer{region: "us-east-1"}
	srv.Reset()
	return srv
}

func (s *ECRServer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetOps()
	s.repos = make(map[string]*types.Repository)
	s.tags = make(map[string][]types.Tag)
}

// Repository returns a copy of the repository called name.
func (s *ECRServer) Repository(name string) (types.Repository, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[name]
	if !ok {
		return types.Repository{}, false
	}
	return *r, true
}

// SetTags replaces the tags of the repository called name.
func (s *ECRServer) SetTags(name string, tags ...types.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[name] = tags
}

func (s *ECRServer) CreateRepository(
	ctx context.Context,
	input *ecr.CreateRepositoryInput,
	opts ...func(*ecr.Options),
) (*ecr.CreateRepositoryOutput, error) {
	if err := s.enter("CreateRepository"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := aws.ToString(input.RepositoryName)
	if _, exists := s.repos[name]; exists {
		return nil, &types.RepositoryAlreadyExistsException{
			Message: aws.String(fmt.Sprintf("repository %s already exists", name)),
		}
	}
	repo := &types.Repository{
		RepositoryName:     aws.String(name),
		RepositoryArn:      aws.String(fmt.Sprintf("arn:aws:ecr:%s:%s:repository/%s", s.region, fakeAccount, name)),
		RepositoryUri:      aws.String(fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s", fakeAccount, s.region, name)),
		RegistryId:         aws.String(fakeAccount),
		ImageTagMutability: input.ImageTagMutability,
	}
	s.repos[name] = repo
	s.tags[name] = input.Tags
	cp := *repo
	return &ecr.CreateRepositoryOutput{Repository: &cp}, nil
}

func (s *ECRServer) DescribeRepositories(
	ctx context.Context,
	input *ecr.DescribeRepositoriesInput,
	opts ...func(*ecr.Options),
) (*ecr.DescribeRepositoriesOutput, error) {
	if err := s.enter("DescribeRepositories"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &ecr.DescribeRepositoriesOutput{}
	names := input.RepositoryNames
	if len(names) == 0 {
		names = sortedKeys(s.repos)
	}
	for _, name := range names {
		r, ok := s.repos[name]
		if !ok {
			return nil, &types.RepositoryNotFoundException{
				Message: aws.String(fmt.Sprintf("repository %s not found", name)),
			}
		}
		out.Repositories = append(out.Repositories, *r)
	}
	return out, nil
}

func (s *ECRServer) ListTagsForResource(
	ctx context.Context,
	input *ecr.ListTagsForResourceInput,
	opts ...func(*ecr.Options),
) (*ecr.ListTagsForResourceOutput, error) {
	if err := s.enter("ListTagsForResource"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, r := range s.repos {
		if aws.ToString(r.RepositoryArn) == aws.ToString(input.ResourceArn) {
			return &ecr.ListTagsForResourceOutput{Tags: s.tags[name]}, nil
		}
	}
	return nil, &types.RepositoryNotFoundException{Message: aws.String("no repository " + aws.ToString(input.ResourceArn))}
}

func (s *ECRServer) DeleteRepository(
	ctx context.Context,
	input *ecr.DeleteRepositoryInput,
	opts ...func(*ecr.Options),
) (*ecr.DeleteRepositoryOutput, error) {
	if err := s.enter("DeleteRepository"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := aws.ToString(input.RepositoryName)
	r, ok := s.repos[name]
	if !ok {
		return nil, &types.RepositoryNotFoundException{Message: aws.String("repository " + name + " not found")}
	}
	delete(s.repos, name)
	delete(s.tags, name)
	return &ecr.DeleteRepositoryOutput{Repository: r}, nil
}
