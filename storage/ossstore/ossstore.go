// Package ossstore implements the storage gateway on Alibaba Cloud OSS.
package ossstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type Params struct {
	Endpoint     string
	AccessKey    string
	AccessSecret string
}

type Store struct {
	client *oss.Client

	mu      sync.Mutex
	buckets map[string]*oss.Bucket
}

func New(p Params) (*Store, error) {
	if p.Endpoint == "" {
		return nil, fmt.Errorf("oss endpoint is required")
	}
	client, err := oss.New(p.Endpoint, p.AccessKey, p.AccessSecret)
	if err != nil {
		return nil, err
	}
	return &Store{client: client, buckets: map[string]*oss.Bucket{}}, nil
}

func (s *Store) bucket(name string) (*oss.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[name]; ok {
		return b, nil
	}
	b, err := s.client.Bucket(name)
	if err != nil {
		return nil, err
	}
	s.buckets[name] = b
	return b, nil
}

func (s *Store) Exists(ctx context.Context, bucket string, key string) (bool, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return false, err
	}
	return b.IsObjectExist(key, oss.WithContext(ctx))
}

func (s *Store) Put(ctx context.Context, bucket string, key string, contentType string, data []byte) error {
	b, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	return b.PutObject(key, bytes.NewReader(data),
		oss.ContentType(contentType),
		oss.ObjectACL(oss.ACLPublicRead),
		oss.WithContext(ctx),
	)
}
