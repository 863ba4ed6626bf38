package sequencing_run_gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AWSS3Service moves run artifacts (FASTQ files, VCFs, case JSON) into the
// Emedgene intake bucket. Credentials come from a short-lived profile that
// an external login script refreshes; the client is rebuilt when the
// session expires.
type AWSS3Service struct {
	loginScript     string
	credsProfile    string
	region          string
	sessionStart    time.Time
	sessionDuration float64
	client          *s3.Client
}

func NewAWSS3Service(loginScript, credsProfile, region string, sessionDuration float64) *AWSS3Service {
	return &AWSS3Service{loginScript: loginScript, credsProfile: credsProfile, region: region, sessionDuration: sessionDuration}
}

// PutCase uploads an Emedgene case payload as JSON.
func (a *AWSS3Service) PutCase(bucketKey, bucketName string, emgCase EmedgeneCase) error {
	s3Client, err := a.getClient()
	if err != nil {
		return fmt.Errorf("Failed to get s3 client: '%s': %q", emgCase.CaseGroupNumber, err)
	}
	err = put[EmedgeneCase](s3Client, bucketKey, bucketName, emgCase)
	if err != nil {
		return fmt.Errorf("Failed to PutCase: '%s': %q", emgCase.CaseGroupNumber, err)
	}
	return nil
}

// PutAnalysis uploads a QLIN analysis payload as JSON, kept alongside the
// sequencing data for traceability.
func (a *AWSS3Service) PutAnalysis(bucketKey, bucketName string, payload AnalysisPayload) error {
	s3Client, err := a.getClient()
	if err != nil {
		return fmt.Errorf("Failed to get s3 client: '%s': %q", payload.AnalysisCode, err)
	}
	err = put[AnalysisPayload](s3Client, bucketKey, bucketName, payload)
	if err != nil {
		return fmt.Errorf("Failed to PutAnalysis: '%s': %q", payload.AnalysisCode, err)
	}
	return nil
}

// UploadFile streams a local run artifact (FASTQ, VCF) to the bucket under
// runID/filename.
func (a *AWSS3Service) UploadFile(localPath, runID, bucketName string) error {
	s3Client, err := a.getClient()
	if err != nil {
		return fmt.Errorf("Failed to get s3 client for '%s': %q", localPath, err)
	}
	fh, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("Failed to open '%s': %q", localPath, err)
	}
	defer fh.Close()

	key := fmt.Sprintf("%s/%s", runID, filepath.Base(localPath))
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
		Body:   fh,
	}
	if _, err := s3Client.PutObject(context.TODO(), input); err != nil {
		return fmt.Errorf("Failed to upload '%s' to %s:%s: %v", localPath, bucketName, key, err)
	}
	return nil
}

func put[T any](s3Client *s3.Client, awsBucketKey, awsDestBucket string, t T) error {
	rJson, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("Failed to marshal: %q", err)
	}

	err = putObject(s3Client, []byte(rJson), awsBucketKey, awsDestBucket)
	if err != nil {
		return fmt.Errorf("Failed to putObject: %q", err)
	}
	return nil
}

func putObject(client *s3.Client, content []byte, bucketKey, bucketName string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String(bucketKey),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/json"),
	}

	_, err := client.PutObject(context.TODO(), input)
	if err != nil {
		return fmt.Errorf("Failed to upload object, %v", err)
	}

	return nil
}

// DeleteObject removes an object, used when a case submission is rolled
// back.
func (a *AWSS3Service) DeleteObject(bucketKey, bucketName string) error {
	s3Client, err := a.getClient()
	if err != nil {
		return fmt.Errorf("Failed to create S3 client %s:%s: %q", bucketName, bucketKey, err)
	}
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(bucketKey),
	}

	_, err = s3Client.DeleteObject(context.TODO(), input)
	if err != nil {
		return fmt.Errorf("Failed to delete object, %v", err)
	}
	return nil
}

// GetCaseObject reads back a previously uploaded case payload.
func (a *AWSS3Service) GetCaseObject(bucketKey, bucketName string) (EmedgeneCase, error) {
	var emgCase EmedgeneCase
	data, err := a.getObjectData(bucketKey, bucketName)
	if err != nil {
		return emgCase, fmt.Errorf("Failed to read object %s:%s: %v", bucketName, bucketKey, err)
	}

	emgCase, err = UnmarshalT[EmedgeneCase](data)
	if err != nil {
		return emgCase, fmt.Errorf("Failed to unmarshal object %s:%s: %v", bucketName, bucketKey, err)
	}

	return emgCase, nil
}

func (a *AWSS3Service) getObjectData(bucketKey, bucketName string) ([]byte, error) {
	s3Client, err := a.getClient()
	if err != nil {
		return nil, fmt.Errorf("Failed to create S3 client %s:%s: %q", bucketName, bucketKey, err)
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(bucketKey),
	}
	output, err := s3Client.GetObject(context.TODO(), input)
	if err != nil {
		return nil, fmt.Errorf("Failed to get object %s:%s: %v", bucketName, bucketKey, err)
	}
	defer output.Body.Close()
	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("Failed to read object %s:%s: %v", bucketName, bucketKey, err)
	}

	return data, nil
}

func refreshCredentials(loginScript string) error {
	cmd := exec.Command("sh", loginScript)
	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("Failed to run %q, err: %v", loginScript, err)
	}
	return nil
}

func createClient(credsProfile, region string) (*s3.Client, error) {
	var client *s3.Client
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
		config.WithSharedConfigProfile(credsProfile))
	if err != nil {
		return client, fmt.Errorf("Failed to load SDK configuration: %v", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (a *AWSS3Service) getClient() (*s3.Client, error) {
	if a.client == nil || a.sessionIsExpired() {
		err := refreshCredentials(a.loginScript)
		if err != nil {
			return nil, fmt.Errorf("Failed to refresh AWS credentials: %q", err)
		}
		// the login script returns before the profile is fully usable
		time.Sleep(time.Minute)
		s3Client, err := createClient(a.credsProfile, a.region)
		if err != nil {
			return nil, fmt.Errorf("Failed to create S3 client: %q", err)
		}

		a.sessionStart = time.Now()
		a.client = s3Client
	}
	return a.client, nil
}

func (a *AWSS3Service) sessionIsExpired() bool {
	if time.Since(a.sessionStart).Seconds() < a.sessionDuration {
		return false
	}
	return true
}
