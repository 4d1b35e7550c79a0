package tfs

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	lru "github.com/hashicorp/golang-lru"
	"github.com/mattetti/filebuffer"
	log "github.com/sirupsen/logrus"
)

const (
	// Objects are fetched in ranged chunks of this size
	defaultChunkSize = 64 * 1024 * 1024

	// Number of object sizes remembered between Stat calls
	statCacheSize = 1024
)

// S3FileSystem abstracts AWS S3 as a filesystem
type S3FileSystem struct {
	s3Client    s3iface.S3API
	objectCache *lru.Cache
}

func newS3FileSystem(client s3iface.S3API) (*S3FileSystem, error) {
	cache, err := lru.New(statCacheSize)
	if err != nil {
		return nil, err
	}
	return &S3FileSystem{
		s3Client:    client,
		objectCache: cache,
	}, nil
}

func parseS3URI(uri string) (*url.URL, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "s3" {
		return nil, fmt.Errorf("invalid s3 uri %q", uri)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("s3 uri %q has no bucket", uri)
	}
	parsed.Path = strings.TrimPrefix(parsed.Path, "/")
	return parsed, nil
}

// globPrefix returns the part of a key pattern before its first glob
// metacharacter, and whether the pattern contains one at all.
func globPrefix(pattern string) (string, bool) {
	idx := strings.IndexAny(pattern, "*?[\\")
	if idx < 0 {
		return pattern, false
	}
	return pattern[:idx], true
}

// ListFiles lists files that match pathGlob. A pattern without glob
// metacharacters lists every object under that prefix.
func (s *S3FileSystem) ListFiles(pathGlob string) ([]FileInfo, error) {
	s3Files := make([]FileInfo, 0)

	parsed, err := parseS3URI(pathGlob)
	if err != nil {
		return nil, err
	}

	prefix, isGlob := globPrefix(parsed.Path)
	params := &s3.ListObjectsV2Input{
		Bucket: aws.String(parsed.Host),
		Prefix: aws.String(prefix),
	}

	var matchErr error
	err = s.s3Client.ListObjectsV2Pages(params,
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, object := range page.Contents {
				if isGlob {
					matched, err := path.Match(parsed.Path, *object.Key)
					if err != nil {
						matchErr = err
						return false
					}
					if !matched {
						continue
					}
				}

				info := FileInfo{
					Name: fmt.Sprintf("s3://%s/%s", parsed.Host, *object.Key),
					Size: *object.Size,
				}
				s.objectCache.Add(info.Name, info)
				s3Files = append(s3Files, info)
			}
			return true
		})
	if err != nil {
		return nil, err
	}

	return s3Files, matchErr
}

// OpenReader opens a reader to the file at filePath. The reader
// is initially seeked to "startAt" bytes into the file.
func (s *S3FileSystem) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}
	objStat, err := s.Stat(filePath)
	if err != nil {
		return nil, err
	}
	if startAt >= objStat.Size {
		return ioutil.NopCloser(strings.NewReader("")), nil
	}

	return &s3Reader{
		client:    s.s3Client,
		bucket:    parsed.Host,
		key:       parsed.Path,
		offset:    startAt,
		chunkSize: defaultChunkSize,
		totalSize: objStat.Size,
	}, nil
}

// OpenWriter opens a writer to the file at filePath. The object is
// uploaded when the writer is closed.
func (s *S3FileSystem) OpenWriter(filePath string) (io.WriteCloser, error) {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}

	s.objectCache.Remove(filePath)
	return &s3Writer{
		client: s.s3Client,
		bucket: parsed.Host,
		key:    parsed.Path,
		buf:    filebuffer.New(nil),
		onClose: func() {
			s.objectCache.Remove(filePath)
		},
	}, nil
}

// Stat returns information about the file at filePath.
func (s *S3FileSystem) Stat(filePath string) (FileInfo, error) {
	if cached, ok := s.objectCache.Get(filePath); ok {
		return cached.(FileInfo), nil
	}

	parsed, err := parseS3URI(filePath)
	if err != nil {
		return FileInfo{}, err
	}

	params := &s3.HeadObjectInput{
		Bucket: aws.String(parsed.Host),
		Key:    aws.String(parsed.Path),
	}
	result, err := s.s3Client.HeadObject(params)
	if err != nil {
		return FileInfo{}, err
	}

	info := FileInfo{
		Name: filePath,
		Size: aws.Int64Value(result.ContentLength),
	}
	s.objectCache.Add(filePath, info)
	return info, nil
}

// Init initializes the filesystem.
func (s *S3FileSystem) Init() error {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return err
	}

	initialized, err := newS3FileSystem(s3.New(sess))
	if err != nil {
		return err
	}
	*s = *initialized
	log.Debug("Initialized S3 filesystem")
	return nil
}

// Join joins file path elements
func (s *S3FileSystem) Join(elem ...string) string {
	stripped := make([]string, len(elem))
	for i, e := range elem {
		if i > 0 {
			e = strings.TrimLeft(e, "/")
		}
		if i < len(elem)-1 {
			e = strings.TrimRight(e, "/")
		}
		stripped[i] = e
	}
	return strings.Join(stripped, "/")
}

// Delete deletes the file at filePath.
func (s *S3FileSystem) Delete(filePath string) error {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return err
	}

	params := &s3.DeleteObjectInput{
		Bucket: aws.String(parsed.Host),
		Key:    aws.String(parsed.Path),
	}
	s.objectCache.Remove(filePath)
	_, err = s.s3Client.DeleteObject(params)
	return err
}
