package orchestrator

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// zeusMarker precedes the 32-character server GUID on stdout once the
// process has registered with the backend network. The format is fixed by
// the server binary and must not be changed.
const zeusMarker = "Successfully authenticated server with Zeus (Server GUID: "

const (
	startupFile = "Startup.txt"
	modListFile = "ModList.txt"
	mapListFile = "MapList.txt"
	adminDir    = "Admin"
	keySuffix   = ".key"
	keyDestName = "server.key"

	defaultMod = "VU-BattleRoyale"
	defaultMap = "XP3_Desert ConquestLarge0 1"
)

// randomHex returns n bytes of entropy as a lowercase hex string.
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// instanceName builds the unique on-disk and in-listing name of a server.
func instanceName() string {
	return "brsvc_" + randomHex(4)
}

// launchArgs builds the command line for a server instance. The flag set is
// what the server binary expects; order is not significant.
func launchArgs(inst Instance, unlisted bool, bindAddress string) []string {
	args := []string{
		"-server", "-dedicated", "-headless",
		"-highResTerrain", "-skipChecksum",
		"-noUpdate", "-updateBranch", "dev",
	}
	if unlisted {
		args = append(args, "-unlisted")
	}
	switch inst.TickRate {
	case Tick60:
		args = append(args, "-high60")
	case Tick120:
		args = append(args, "-high120")
	}
	args = append(args,
		"-listen", fmt.Sprintf("%s:%d", bindAddress, inst.GamePort),
		"-RemoteAdminPort", fmt.Sprintf("%s:%d", bindAddress, inst.ControlPort),
		"-mHarmonyPort", fmt.Sprintf("%d", inst.MonitorPort),
		"-serverInstancePath", inst.Dir,
	)
	return args
}

// startupDirectives renders the Admin/Startup.txt consumed by the server on
// boot. The key/quoting shapes are fixed by the server's script parser.
func startupDirectives(inst Instance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "vars.serverName \"%s\"\n", inst.Name)
	fmt.Fprintf(&b, "vars.friendlyFire true\n")
	fmt.Fprintf(&b, "admin.password \"%s\"\n", inst.ControlPassword)
	fmt.Fprintf(&b, "vars.gamePassword %s\n", inst.GamePassword)
	return b.String()
}

// writeLaunchFiles materializes the startup script, mod list and map
// rotation under the instance's Admin directory.
func writeLaunchFiles(inst Instance) error {
	dir := filepath.Join(inst.Dir, adminDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "failed to create admin dir")
	}
	files := map[string]string{
		startupFile: startupDirectives(inst),
		modListFile: defaultMod + "\n",
		mapListFile: defaultMap + "\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return eris.Wrapf(err, "failed to write %s", name)
		}
	}
	return nil
}

// scanKeys lists every license key file directly under dir.
func scanKeys(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read template dir %s", dir)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), keySuffix) {
			continue
		}
		keys = append(keys, filepath.Join(dir, e.Name()))
	}
	return keys, nil
}

// copyFile copies src to dst, creating or truncating dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dst)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return eris.Wrapf(err, "failed to copy %s", src)
	}
	return nil
}

// copyTree deep-copies the directory at src into dst.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
