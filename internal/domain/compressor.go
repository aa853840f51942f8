package domain

type Compressor interface {
	Compress(sourcePath, destPath string) error
	Decompress(sourcePath, destPath string) error
	Extension() string
}

type Encryptor interface {
	Encrypt(sourcePath, destPath string) error
	Decrypt(sourcePath, destPath string) error
	Extension() string
}
