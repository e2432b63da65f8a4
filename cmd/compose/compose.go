package compose

import (
	"fmt"
	"net"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dkhoanguyen/playground/internal/utils"
	models "github.com/dkhoanguyen/playground/models/compose"
	pkgcompose "github.com/dkhoanguyen/playground/pkg/compose"
	"github.com/dkhoanguyen/playground/pkg/docker"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const DefaultWaitTimeout = 2 * time.Minute

func NewCommand(rt *Runtime) *cobra.Command {
	opts := &projectOptions{}
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Manage the database stack described by the compose file",
	}
	cmd.PersistentFlags().StringVarP(&opts.File, "file", "f", "", "compose file (default $COMPOSE_FILE or docker-compose.yml)")
	cmd.PersistentFlags().StringVarP(&opts.ProjectName, "project-name", "p", "", "project name (default $COMPOSE_PROJECT_NAME or the file's directory)")

	cmd.AddCommand(
		configCommand(rt, opts),
		validateCommand(rt, opts),
		upCommand(rt, opts),
		downCommand(rt, opts),
		psCommand(rt, opts),
	)
	return cmd
}

func configCommand(rt *Runtime, opts *projectOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved compose file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := opts.loadValid(rt)
			if err != nil {
				return err
			}
			out, err := pkgcompose.Marshal(project)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func validateCommand(rt *Runtime, opts *projectOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the compose file and report every problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := opts.load(rt)
			if err != nil {
				return err
			}
			if err := pkgcompose.Validate(project); err != nil {
				issues := pkgcompose.Issues(err)
				for _, issue := range issues {
					fmt.Fprintln(cmd.OutOrStdout(), issue)
				}
				return errors.Errorf("%s: %d problems found", opts.file(rt), len(issues))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: project %s is valid\n", opts.file(rt), project.Name)
			return nil
		},
	}
}

func upCommand(rt *Runtime, opts *projectOptions) *cobra.Command {
	var upOpts docker.UpOptions
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Create and start the project's containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := opts.loadValid(rt)
			if err != nil {
				return err
			}
			upOpts.Progress = cmd.ErrOrStderr()
			return rt.withEngine(func(engine docker.Engine) error {
				containers, err := docker.Up(cmd.Context(), engine, project, upOpts, rt.Logger)
				if err != nil {
					return err
				}
				for _, cnt := range containers {
					fmt.Fprintf(cmd.OutOrStdout(), "Container %s started\n", cnt.Name)
				}
				if !upOpts.Wait {
					return nil
				}
				if unreachable := checkPorts(cmd, project, rt.Logger); len(unreachable) > 0 {
					return errors.Errorf("published ports not reachable: %s", strings.Join(unreachable, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&upOpts.Wait, "wait", false, "wait for services to be healthy and their published ports reachable")
	cmd.Flags().DurationVar(&upOpts.Timeout, "timeout", DefaultWaitTimeout, "maximum time to wait with --wait")
	return cmd
}

// publishedAddresses lists the host addresses of every published TCP port.
func publishedAddresses(project *models.Project) ([]string, error) {
	var out []string
	for _, name := range project.ServiceNames() {
		for _, port := range project.Services[name].Ports {
			if port.HostPort == "" || (port.Protocol != "" && port.Protocol != "tcp") {
				continue
			}
			start, end, err := nat.ParsePortRangeToInt(port.HostPort)
			if err != nil {
				return nil, errors.Wrapf(err, "service %s", name)
			}
			host := port.HostIP
			if host == "" || host == "0.0.0.0" || host == "::" {
				host = "127.0.0.1"
			}
			for p := start; p <= end; p++ {
				out = append(out, net.JoinHostPort(host, fmt.Sprint(p)))
			}
		}
	}
	return out, nil
}

func checkPorts(cmd *cobra.Command, project *models.Project, logger *zap.Logger) []string {
	addresses, err := publishedAddresses(project)
	if err != nil {
		return []string{err.Error()}
	}
	var unreachable []string
	for _, address := range addresses {
		if !utils.Ping(cmd.Context(), address, 5, 2*time.Second, time.Second, logger) {
			unreachable = append(unreachable, address)
		}
	}
	return unreachable
}

func downCommand(rt *Runtime, opts *projectOptions) *cobra.Command {
	var downOpts docker.DownOptions
	var timeout int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the project's containers and network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := opts.name(rt)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("timeout") {
				downOpts.Timeout = &timeout
			}
			return rt.withEngine(func(engine docker.Engine) error {
				return docker.Down(cmd.Context(), engine, name, downOpts, rt.Logger)
			})
		},
	}
	cmd.Flags().BoolVarP(&downOpts.RemoveVolumes, "volumes", "v", false, "also remove the project's named volumes")
	cmd.Flags().IntVarP(&timeout, "timeout", "t", 10, "seconds to wait for containers to stop")
	return cmd
}

func psCommand(rt *Runtime, opts *projectOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List the project's containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := opts.name(rt)
			if err != nil {
				return err
			}
			return rt.withEngine(func(engine docker.Engine) error {
				summaries, err := docker.Ps(cmd.Context(), engine, name, rt.Logger)
				if err != nil {
					return err
				}
				return writeSummaries(cmd, summaries, time.Now())
			})
		},
	}
}

func writeSummaries(cmd *cobra.Command, summaries []docker.ContainerSummary, now time.Time) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tSERVICE\tIMAGE\tCREATED\tSTATUS\tPORTS")
	for _, s := range summaries {
		created := ""
		if !s.Created.IsZero() {
			created = units.HumanDuration(now.Sub(s.Created)) + " ago"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Name, s.Service, s.Image, created, s.Status, strings.Join(s.Ports, ", "))
	}
	return w.Flush()
}
