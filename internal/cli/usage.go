package cli

const usageText = `hexpeek - a streaming hex/bits editor

Usage: hexpeek [options] [file ...]

  -h, -help                show this help and exit
  -v, -version              show version and exit
  -d FD                     use pre-opened descriptor FD as the next infile
  -r | -w | -W               subsequent infiles: read-only / write+create / write
  -ik | +ik                 allow / forbid insert and kill
  -x "CMDS"                 run semicolon-delimited commands then exit
  -dump | -list              equivalent to -x "0:max"
  -pack                      reverse of -dump: read a rendered dump from stdin
  -diff                      equivalent to -x "$0@0:max~$1@0:max"
  -s START -l LEN           override start/length for -dump/-diff
  -o PATH                    redirect stdout
  -b | -c N | -g N          bits mode / columns / group width
  -p                         plain mode, all decorations off
  +lineterm                  omit line terminators
  -format FMT                group delimiter template (must contain %_g)
  -unique                    skip infile uniqueness check
  +tty                       treat stdin/stdout as non-terminals
  -pedantic | -permissive    tighten / loosen inference rules
  [-|+]strict                fail-exit on user-level errors
  -backup {0..32|max|sync}   backup depth / aggressive sync
  -recover | -AutoRecover    enter recovery at startup
  -trace PATH                diagnostic trace to file
  --                         end of options

At the prompt, a bare filezone with no subcommand prints it; an empty
line pages forward.
`
